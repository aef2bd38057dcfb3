// Package k8stools is the production actions.ToolExecutor: it carries
// out runbook steps against a real cluster via client-go, the way
// kubilitics-backend's internal/k8s and internal/metrics packages talk
// to the Kubernetes and metrics-server APIs.
//
// The executor is bound to a single Target (namespace/deployment/pod)
// at construction time. The actions.ToolExecutor interface
// carries no per-call incident context — Invoke only ever gets an
// action name — so a production instance is scoped to whichever
// workload the agent is currently remediating, matching the
// one-incident-at-a-time shape of the BDI loop (spec.md §5: a single
// goroutine drives Execute for one incident to completion before the
// next Step call can start another).
package k8stools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/sentineloop/incident-agent/internal/actions"
)

// Target names the deployment and one of its pods the executor acts
// against. It is fixed when the Executor is constructed and applies to
// every incident the Executor acts on.
type Target struct {
	Namespace  string
	Deployment string
	Pod        string
}

// Executor implements actions.ToolExecutor against a live cluster.
type Executor struct {
	clientset kubernetes.Interface
	metrics   metricsv.Interface
	target    Target
}

// LoadConfig returns an in-cluster rest.Config, falling back to
// kubeconfigPath (or $HOME/.kube/config) when not running inside a
// pod — the same fallback kubilitics-backend's internal/k8s.Client
// uses for local development against a remote cluster.
func LoadConfig(kubeconfigPath string) (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	if kubeconfigPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			kubeconfigPath = filepath.Join(home, ".kube", "config")
		}
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
}

// New builds an Executor from a rest.Config and the workload it will
// act against.
func New(cfg *rest.Config, target Target) (*Executor, error) {
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("k8stools: build clientset: %w", err)
	}
	metricsClient, err := metricsv.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("k8stools: build metrics clientset: %w", err)
	}
	return &Executor{clientset: clientset, metrics: metricsClient, target: target}, nil
}

// Snapshot captures the deployment's current pod template before a
// Mutate action runs, so Compensate can restore it verbatim.
func (e *Executor) Snapshot(ctx context.Context, name string) (any, error) {
	dep, err := e.clientset.AppsV1().Deployments(e.target.Namespace).Get(ctx, e.target.Deployment, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("k8stools: snapshot %s: get deployment: %w", name, err)
	}
	return *dep.Spec.Template.DeepCopy(), nil
}

// Compensate restores a deployment's pod template from a prior
// Snapshot, undoing rollback_deployment, restart_deployment, or
// tune_memory_limits.
func (e *Executor) Compensate(ctx context.Context, name string, snapshot any) error {
	template, ok := snapshot.(corev1.PodTemplateSpec)
	if !ok {
		return fmt.Errorf("k8stools: compensate %s: snapshot is %T, want PodTemplateSpec", name, snapshot)
	}
	dep, err := e.clientset.AppsV1().Deployments(e.target.Namespace).Get(ctx, e.target.Deployment, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("k8stools: compensate %s: get deployment: %w", name, err)
	}
	dep.Spec.Template = template
	_, err = e.clientset.AppsV1().Deployments(e.target.Namespace).Update(ctx, dep, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("k8stools: compensate %s: update deployment: %w", name, err)
	}
	return nil
}

// Invoke runs the named runbook step. Observe steps return a
// human/LLM-readable summary in ToolResult.Output; Mutate and
// Irreversible steps return a short confirmation.
func (e *Executor) Invoke(ctx context.Context, name string, params map[string]string) (actions.ToolResult, error) {
	switch name {
	case "get_pod_logs":
		return e.getPodLogs(ctx)
	case "get_pod_events":
		return e.getPodEvents(ctx)
	case "get_deploy_history":
		return e.getDeployHistory(ctx)
	case "get_memory_metrics":
		return e.getMemoryMetrics(ctx)
	case "rollback_deployment":
		return e.rollbackDeployment(ctx)
	case "restart_deployment":
		return e.restartDeployment(ctx)
	case "tune_memory_limits":
		return e.tuneMemoryLimits(ctx)
	case "wait_for_rollout":
		return e.waitForRollout(ctx)
	case "verify_recovery":
		return e.verifyRecovery(ctx)
	case "delete_pvc":
		return e.deletePVC(ctx)
	default:
		return actions.ToolResult{}, fmt.Errorf("k8stools: unknown action %q", name)
	}
}

func (e *Executor) getPodLogs(ctx context.Context) (actions.ToolResult, error) {
	var tailLines int64 = 200
	req := e.clientset.CoreV1().Pods(e.target.Namespace).GetLogs(e.target.Pod, &corev1.PodLogOptions{TailLines: &tailLines})
	raw, err := req.DoRaw(ctx)
	if err != nil {
		return actions.ToolResult{}, fmt.Errorf("get_pod_logs: %w", err)
	}
	return actions.ToolResult{Output: string(raw)}, nil
}

func (e *Executor) getPodEvents(ctx context.Context) (actions.ToolResult, error) {
	events, err := e.clientset.CoreV1().Events(e.target.Namespace).List(ctx, metav1.ListOptions{
		FieldSelector: "involvedObject.name=" + e.target.Pod,
	})
	if err != nil {
		return actions.ToolResult{}, fmt.Errorf("get_pod_events: %w", err)
	}
	out := ""
	for _, ev := range events.Items {
		out += fmt.Sprintf("%s %s: %s\n", ev.LastTimestamp.Format(time.RFC3339), ev.Reason, ev.Message)
	}
	return actions.ToolResult{Output: out}, nil
}

func (e *Executor) getDeployHistory(ctx context.Context) (actions.ToolResult, error) {
	dep, err := e.clientset.AppsV1().Deployments(e.target.Namespace).Get(ctx, e.target.Deployment, metav1.GetOptions{})
	if err != nil {
		return actions.ToolResult{}, fmt.Errorf("get_deploy_history: get deployment: %w", err)
	}
	rsList, err := e.replicaSets(ctx, dep)
	if err != nil {
		return actions.ToolResult{}, fmt.Errorf("get_deploy_history: %w", err)
	}
	out := fmt.Sprintf("current revision: %s\n", dep.Annotations["deployment.kubernetes.io/revision"])
	for _, rs := range rsList {
		out += fmt.Sprintf("replicaset %s revision %s, %d replicas\n", rs.Name, rs.Annotations["deployment.kubernetes.io/revision"], rs.Status.Replicas)
	}
	return actions.ToolResult{Output: out}, nil
}

func (e *Executor) getMemoryMetrics(ctx context.Context) (actions.ToolResult, error) {
	pm, err := e.metrics.MetricsV1beta1().PodMetricses(e.target.Namespace).Get(ctx, e.target.Pod, metav1.GetOptions{})
	if err != nil {
		return actions.ToolResult{}, fmt.Errorf("get_memory_metrics: %w", err)
	}
	var totalMi float64
	for _, c := range pm.Containers {
		totalMi += float64(c.Usage.Memory().Value()) / (1024 * 1024)
	}
	return actions.ToolResult{Output: fmt.Sprintf("%.1fMi", totalMi)}, nil
}

// rollbackDeployment reverts the deployment's pod template to the
// previous revision's ReplicaSet, the client-go equivalent of
// `kubectl rollout undo`.
func (e *Executor) rollbackDeployment(ctx context.Context) (actions.ToolResult, error) {
	dep, err := e.clientset.AppsV1().Deployments(e.target.Namespace).Get(ctx, e.target.Deployment, metav1.GetOptions{})
	if err != nil {
		return actions.ToolResult{}, fmt.Errorf("rollback_deployment: get deployment: %w", err)
	}
	rsList, err := e.replicaSets(ctx, dep)
	if err != nil {
		return actions.ToolResult{}, fmt.Errorf("rollback_deployment: %w", err)
	}
	previous := previousReplicaSet(dep, rsList)
	if previous == nil {
		return actions.ToolResult{}, fmt.Errorf("rollback_deployment: no previous revision found")
	}
	dep.Spec.Template = *previous.Spec.Template.DeepCopy()
	if _, err := e.clientset.AppsV1().Deployments(e.target.Namespace).Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return actions.ToolResult{}, fmt.Errorf("rollback_deployment: update deployment: %w", err)
	}
	return actions.ToolResult{Output: "rolled back to revision " + previous.Annotations["deployment.kubernetes.io/revision"]}, nil
}

// restartDeployment triggers a new rollout in place by bumping the pod
// template's restart annotation, the client-go equivalent of
// `kubectl rollout restart`.
func (e *Executor) restartDeployment(ctx context.Context) (actions.ToolResult, error) {
	dep, err := e.clientset.AppsV1().Deployments(e.target.Namespace).Get(ctx, e.target.Deployment, metav1.GetOptions{})
	if err != nil {
		return actions.ToolResult{}, fmt.Errorf("restart_deployment: get deployment: %w", err)
	}
	if dep.Spec.Template.Annotations == nil {
		dep.Spec.Template.Annotations = map[string]string{}
	}
	dep.Spec.Template.Annotations["incident-agent.io/restartedAt"] = time.Now().UTC().Format(time.RFC3339)
	if _, err := e.clientset.AppsV1().Deployments(e.target.Namespace).Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return actions.ToolResult{}, fmt.Errorf("restart_deployment: update deployment: %w", err)
	}
	return actions.ToolResult{Output: "restart issued"}, nil
}

// tuneMemoryLimits raises every container's memory limit by 50% of its
// current value, a conservative step while the OOMKill runbook waits
// for verify_recovery to confirm it was enough.
func (e *Executor) tuneMemoryLimits(ctx context.Context) (actions.ToolResult, error) {
	dep, err := e.clientset.AppsV1().Deployments(e.target.Namespace).Get(ctx, e.target.Deployment, metav1.GetOptions{})
	if err != nil {
		return actions.ToolResult{}, fmt.Errorf("tune_memory_limits: get deployment: %w", err)
	}
	for i, c := range dep.Spec.Template.Spec.Containers {
		mem := c.Resources.Limits.Memory()
		if mem == nil || mem.IsZero() {
			continue
		}
		raised := mem.Value() * 3 / 2
		newLimits := dep.Spec.Template.Spec.Containers[i].Resources.Limits.DeepCopy()
		newLimits[corev1.ResourceMemory] = *resource.NewQuantity(raised, resource.BinarySI)
		dep.Spec.Template.Spec.Containers[i].Resources.Limits = newLimits
	}
	if _, err := e.clientset.AppsV1().Deployments(e.target.Namespace).Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return actions.ToolResult{}, fmt.Errorf("tune_memory_limits: update deployment: %w", err)
	}
	return actions.ToolResult{Output: "memory limits raised"}, nil
}

func (e *Executor) waitForRollout(ctx context.Context) (actions.ToolResult, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		dep, err := e.clientset.AppsV1().Deployments(e.target.Namespace).Get(ctx, e.target.Deployment, metav1.GetOptions{})
		if err != nil {
			return actions.ToolResult{}, fmt.Errorf("wait_for_rollout: get deployment: %w", err)
		}
		if dep.Status.UpdatedReplicas == *dep.Spec.Replicas && dep.Status.AvailableReplicas == *dep.Spec.Replicas {
			return actions.ToolResult{Output: "rollout complete"}, nil
		}
		select {
		case <-ctx.Done():
			return actions.ToolResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Executor) verifyRecovery(ctx context.Context) (actions.ToolResult, error) {
	pod, err := e.clientset.CoreV1().Pods(e.target.Namespace).Get(ctx, e.target.Pod, metav1.GetOptions{})
	if err != nil {
		return actions.ToolResult{}, fmt.Errorf("verify_recovery: get pod: %w", err)
	}
	if pod.Status.Phase != corev1.PodRunning {
		return actions.ToolResult{}, fmt.Errorf("verify_recovery: pod phase is %s, not Running", pod.Status.Phase)
	}
	return actions.ToolResult{Output: "pod is Running"}, nil
}

// deletePVC removes the first PersistentVolumeClaim mounted by the
// target pod. It is the registry's Irreversible action: the executor
// only invokes it after an explicit human approval.
func (e *Executor) deletePVC(ctx context.Context) (actions.ToolResult, error) {
	pod, err := e.clientset.CoreV1().Pods(e.target.Namespace).Get(ctx, e.target.Pod, metav1.GetOptions{})
	if err != nil {
		return actions.ToolResult{}, fmt.Errorf("delete_pvc: get pod: %w", err)
	}
	claim := ""
	for _, v := range pod.Spec.Volumes {
		if v.PersistentVolumeClaim != nil {
			claim = v.PersistentVolumeClaim.ClaimName
			break
		}
	}
	if claim == "" {
		return actions.ToolResult{}, fmt.Errorf("delete_pvc: pod has no PersistentVolumeClaim volume")
	}
	if err := e.clientset.CoreV1().PersistentVolumeClaims(e.target.Namespace).Delete(ctx, claim, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return actions.ToolResult{}, fmt.Errorf("delete_pvc: %w", err)
	}
	return actions.ToolResult{Output: "deleted pvc " + claim}, nil
}

func (e *Executor) replicaSets(ctx context.Context, dep *appsv1.Deployment) ([]appsv1.ReplicaSet, error) {
	selector, err := metav1.LabelSelectorAsSelector(dep.Spec.Selector)
	if err != nil {
		return nil, fmt.Errorf("build selector: %w", err)
	}
	list, err := e.clientset.AppsV1().ReplicaSets(e.target.Namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, fmt.Errorf("list replicasets: %w", err)
	}
	return list.Items, nil
}

// previousReplicaSet returns the highest-revision ReplicaSet that is
// not dep's current one, or nil if there is no earlier revision.
// Revisions are compared numerically, not lexicographically: a
// deployment ten or more rollouts deep has revision annotations like
// "9" and "10", and "9" > "10" as strings.
func previousReplicaSet(dep *appsv1.Deployment, rsList []appsv1.ReplicaSet) *appsv1.ReplicaSet {
	currentRevision := dep.Annotations["deployment.kubernetes.io/revision"]
	var best *appsv1.ReplicaSet
	var bestRev int
	for i := range rsList {
		rs := &rsList[i]
		rev := rs.Annotations["deployment.kubernetes.io/revision"]
		if rev == "" || rev == currentRevision {
			continue
		}
		n, err := strconv.Atoi(rev)
		if err != nil {
			continue
		}
		if best == nil || n > bestRev {
			best = rs
			bestRev = n
		}
	}
	return best
}
