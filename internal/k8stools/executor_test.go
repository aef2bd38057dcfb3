package k8stools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/client-go/kubernetes/fake"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"

	"github.com/sentineloop/incident-agent/internal/actions"
)

const testNamespace = "payments"

func testTarget() Target {
	return Target{Namespace: testNamespace, Deployment: "checkout", Pod: "checkout-abc123"}
}

func testDeployment(replicas int32) *appsv1.Deployment {
	one := replicas
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:        "checkout",
			Namespace:   testNamespace,
			Annotations: map[string]string{"deployment.kubernetes.io/revision": "3"},
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &one,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": "checkout"}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": "checkout"}},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name: "checkout",
						Resources: corev1.ResourceRequirements{
							Limits: corev1.ResourceList{corev1.ResourceMemory: resource.MustParse("256Mi")},
						},
					}},
				},
			},
		},
		Status: appsv1.DeploymentStatus{UpdatedReplicas: one, AvailableReplicas: one},
	}
}

func testPod(phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "checkout-abc123", Namespace: testNamespace},
		Spec: corev1.PodSpec{
			Volumes: []corev1.Volume{{
				Name: "data",
				VolumeSource: corev1.VolumeSource{
					PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: "checkout-data"},
				},
			}},
		},
		Status: corev1.PodStatus{Phase: phase},
	}
}

func TestExecutorVerifyRecovery(t *testing.T) {
	clientset := fake.NewSimpleClientset(testPod(corev1.PodRunning))
	e := &Executor{clientset: clientset, target: testTarget()}

	result, err := e.Invoke(context.Background(), "verify_recovery", nil)
	require.NoError(t, err)
	assert.Contains(t, result.Output, "Running")
}

func TestExecutorVerifyRecoveryNotRunning(t *testing.T) {
	clientset := fake.NewSimpleClientset(testPod(corev1.PodPending))
	e := &Executor{clientset: clientset, target: testTarget()}

	_, err := e.Invoke(context.Background(), "verify_recovery", nil)
	require.Error(t, err)
}

func TestExecutorWaitForRolloutCompletesImmediately(t *testing.T) {
	clientset := fake.NewSimpleClientset(testDeployment(2))
	e := &Executor{clientset: clientset, target: testTarget()}

	result, err := e.Invoke(context.Background(), "wait_for_rollout", nil)
	require.NoError(t, err)
	assert.Equal(t, "rollout complete", result.Output)
}

func TestExecutorWaitForRolloutRespectsCancellation(t *testing.T) {
	dep := testDeployment(2)
	dep.Status.UpdatedReplicas = 0
	clientset := fake.NewSimpleClientset(dep)
	e := &Executor{clientset: clientset, target: testTarget()}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.Invoke(ctx, "wait_for_rollout", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecutorRestartDeploymentStampsAnnotation(t *testing.T) {
	clientset := fake.NewSimpleClientset(testDeployment(1))
	e := &Executor{clientset: clientset, target: testTarget()}

	_, err := e.Invoke(context.Background(), "restart_deployment", nil)
	require.NoError(t, err)

	dep, err := clientset.AppsV1().Deployments(testNamespace).Get(context.Background(), "checkout", metav1.GetOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, dep.Spec.Template.Annotations["incident-agent.io/restartedAt"])
}

func TestExecutorTuneMemoryLimitsRaisesBy50Percent(t *testing.T) {
	clientset := fake.NewSimpleClientset(testDeployment(1))
	e := &Executor{clientset: clientset, target: testTarget()}

	_, err := e.Invoke(context.Background(), "tune_memory_limits", nil)
	require.NoError(t, err)

	dep, err := clientset.AppsV1().Deployments(testNamespace).Get(context.Background(), "checkout", metav1.GetOptions{})
	require.NoError(t, err)
	got := dep.Spec.Template.Spec.Containers[0].Resources.Limits.Memory().Value()
	baseline := resource.MustParse("256Mi")
	want := baseline.Value() * 3 / 2
	assert.Equal(t, want, got)
}

func TestExecutorSnapshotCompensateRoundTrip(t *testing.T) {
	clientset := fake.NewSimpleClientset(testDeployment(1))
	e := &Executor{clientset: clientset, target: testTarget()}
	ctx := context.Background()

	snapshot, err := e.Snapshot(ctx, "tune_memory_limits")
	require.NoError(t, err)

	_, err = e.Invoke(ctx, "tune_memory_limits", nil)
	require.NoError(t, err)

	dep, err := clientset.AppsV1().Deployments(testNamespace).Get(ctx, "checkout", metav1.GetOptions{})
	require.NoError(t, err)
	baseline := resource.MustParse("256Mi")
	require.NotEqual(t, baseline.Value(), dep.Spec.Template.Spec.Containers[0].Resources.Limits.Memory().Value())

	require.NoError(t, e.Compensate(ctx, "tune_memory_limits", snapshot))

	dep, err = clientset.AppsV1().Deployments(testNamespace).Get(ctx, "checkout", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, baseline.Value(), dep.Spec.Template.Spec.Containers[0].Resources.Limits.Memory().Value())
}

func TestExecutorCompensateRejectsWrongSnapshotType(t *testing.T) {
	clientset := fake.NewSimpleClientset(testDeployment(1))
	e := &Executor{clientset: clientset, target: testTarget()}

	err := e.Compensate(context.Background(), "tune_memory_limits", "not a pod template")
	require.Error(t, err)
}

func TestExecutorRollbackDeploymentUsesPreviousRevision(t *testing.T) {
	dep := testDeployment(1)
	current := &appsv1.ReplicaSet{
		ObjectMeta: metav1.ObjectMeta{
			Name:        "checkout-rs-3",
			Namespace:   testNamespace,
			Labels:      map[string]string{"app": "checkout"},
			Annotations: map[string]string{"deployment.kubernetes.io/revision": "3"},
		},
		Spec: appsv1.ReplicaSetSpec{
			Selector: dep.Spec.Selector,
			Template: dep.Spec.Template,
		},
	}
	previous := &appsv1.ReplicaSet{
		ObjectMeta: metav1.ObjectMeta{
			Name:        "checkout-rs-2",
			Namespace:   testNamespace,
			Labels:      map[string]string{"app": "checkout"},
			Annotations: map[string]string{"deployment.kubernetes.io/revision": "2"},
		},
		Spec: appsv1.ReplicaSetSpec{
			Selector: dep.Spec.Selector,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": "checkout"}},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: "checkout", Image: "checkout:v1"}},
				},
			},
		},
	}
	clientset := fake.NewSimpleClientset(dep, current, previous)
	e := &Executor{clientset: clientset, target: testTarget()}

	result, err := e.Invoke(context.Background(), "rollback_deployment", nil)
	require.NoError(t, err)
	assert.Contains(t, result.Output, "revision 2")

	got, err := clientset.AppsV1().Deployments(testNamespace).Get(context.Background(), "checkout", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "checkout:v1", got.Spec.Template.Spec.Containers[0].Image)
}

func TestExecutorRollbackDeploymentComparesRevisionsNumerically(t *testing.T) {
	dep := testDeployment(1)
	dep.Annotations["deployment.kubernetes.io/revision"] = "11"
	rsRev := func(name, revision, image string) *appsv1.ReplicaSet {
		return &appsv1.ReplicaSet{
			ObjectMeta: metav1.ObjectMeta{
				Name:        name,
				Namespace:   testNamespace,
				Labels:      map[string]string{"app": "checkout"},
				Annotations: map[string]string{"deployment.kubernetes.io/revision": revision},
			},
			Spec: appsv1.ReplicaSetSpec{
				Selector: dep.Spec.Selector,
				Template: corev1.PodTemplateSpec{
					ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": "checkout"}},
					Spec: corev1.PodSpec{
						Containers: []corev1.Container{{Name: "checkout", Image: "checkout:" + revision}},
					},
				},
			},
		}
	}
	current := rsRev("checkout-rs-11", "11", "11")
	rev10 := rsRev("checkout-rs-10", "10", "10")
	rev9 := rsRev("checkout-rs-9", "9", "9")

	clientset := fake.NewSimpleClientset(dep, current, rev10, rev9)
	e := &Executor{clientset: clientset, target: testTarget()}

	result, err := e.Invoke(context.Background(), "rollback_deployment", nil)
	require.NoError(t, err)
	assert.Contains(t, result.Output, "revision 10")

	got, err := clientset.AppsV1().Deployments(testNamespace).Get(context.Background(), "checkout", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "checkout:10", got.Spec.Template.Spec.Containers[0].Image)
}

func TestExecutorDeletePVCRemovesTargetPodsClaim(t *testing.T) {
	clientset := fake.NewSimpleClientset(testPod(corev1.PodRunning), &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: "checkout-data", Namespace: testNamespace},
	})
	e := &Executor{clientset: clientset, target: testTarget()}

	result, err := e.Invoke(context.Background(), "delete_pvc", nil)
	require.NoError(t, err)
	assert.Contains(t, result.Output, "checkout-data")

	_, err = clientset.CoreV1().PersistentVolumeClaims(testNamespace).Get(context.Background(), "checkout-data", metav1.GetOptions{})
	assert.Error(t, err)
}

func TestExecutorDeletePVCErrorsWhenPodHasNoClaim(t *testing.T) {
	pod := testPod(corev1.PodRunning)
	pod.Spec.Volumes = nil
	clientset := fake.NewSimpleClientset(pod)
	e := &Executor{clientset: clientset, target: testTarget()}

	_, err := e.Invoke(context.Background(), "delete_pvc", nil)
	require.Error(t, err)
}

func TestExecutorGetMemoryMetricsSumsContainers(t *testing.T) {
	pm := &metricsv1beta1.PodMetrics{
		ObjectMeta: metav1.ObjectMeta{Name: "checkout-abc123", Namespace: testNamespace},
		Containers: []metricsv1beta1.ContainerMetrics{
			{Name: "checkout", Usage: corev1.ResourceList{corev1.ResourceMemory: resource.MustParse("100Mi")}},
			{Name: "sidecar", Usage: corev1.ResourceList{corev1.ResourceMemory: resource.MustParse("28Mi")}},
		},
	}
	metricsClient := metricsfake.NewSimpleClientset()
	podsMetricsGVR := metricsv1beta1.SchemeGroupVersion.WithResource("pods")
	require.NoError(t, metricsClient.Tracker().Create(podsMetricsGVR, pm, testNamespace))
	e := &Executor{clientset: fake.NewSimpleClientset(), metrics: metricsClient, target: testTarget()}

	result, err := e.Invoke(context.Background(), "get_memory_metrics", nil)
	require.NoError(t, err)
	assert.Equal(t, "128.0Mi", result.Output)
}

func TestExecutorGetPodEventsFormatsEachEntry(t *testing.T) {
	event := &corev1.Event{
		ObjectMeta:     metav1.ObjectMeta{Name: "checkout-abc123.evt1", Namespace: testNamespace},
		InvolvedObject: corev1.ObjectReference{Name: "checkout-abc123"},
		Reason:         "OOMKilling",
		Message:        "container checkout exceeded memory limit",
		LastTimestamp:  metav1.NewTime(time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)),
	}
	clientset := fake.NewSimpleClientset(event)
	e := &Executor{clientset: clientset, target: testTarget()}

	result, err := e.Invoke(context.Background(), "get_pod_events", nil)
	require.NoError(t, err)
	assert.Contains(t, result.Output, "OOMKilling")
	assert.Contains(t, result.Output, "container checkout exceeded memory limit")
}

func TestExecutorGetDeployHistoryIncludesCurrentRevision(t *testing.T) {
	dep := testDeployment(1)
	clientset := fake.NewSimpleClientset(dep)
	e := &Executor{clientset: clientset, target: testTarget()}

	result, err := e.Invoke(context.Background(), "get_deploy_history", nil)
	require.NoError(t, err)
	assert.Contains(t, result.Output, "current revision: 3")
}

func TestExecutorUnknownActionErrors(t *testing.T) {
	e := &Executor{clientset: fake.NewSimpleClientset(), target: testTarget()}
	_, err := e.Invoke(context.Background(), "not_a_real_action", nil)
	require.Error(t, err)
}

var _ actions.ToolExecutor = (*Executor)(nil)
