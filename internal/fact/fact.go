// Package fact defines the tagged Fact union the rule engine consumes
// and the canonical alert.v1 wire schema adapters normalize into.
package fact

import (
	"fmt"
	"time"
)

// Kind tags which variant a Fact carries.
type Kind string

const (
	KindPod    Kind = "pod"
	KindAlert  Kind = "alert"
	KindDeploy Kind = "deploy"
	KindMetric Kind = "metric"
)

// PodPhase enumerates Kubernetes pod lifecycle phases.
type PodPhase string

const (
	PhaseRunning   PodPhase = "Running"
	PhasePending   PodPhase = "Pending"
	PhaseFailed    PodPhase = "Failed"
	PhaseSucceeded PodPhase = "Succeeded"
	PhaseUnknown   PodPhase = "Unknown"
)

// Severity enumerates alert severities, ordered least to most urgent.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertSource enumerates the originating systems CanonicalAlert adapters
// translate from.
type AlertSource string

const (
	SourceDatadog   AlertSource = "datadog"
	SourcePagerDuty AlertSource = "pagerduty"
	SourceGrafana   AlertSource = "grafana"
	SourceCloudWatch AlertSource = "cloudwatch"
	SourceGeneric   AlertSource = "generic"
)

// Pod is an observation of a single pod's state.
type Pod struct {
	Name              string
	Namespace         string
	Phase             PodPhase
	RestartCount      int
	TerminationReason string
	ObservedAt        time.Time
}

// Alert is a normalized alert observation.
type Alert struct {
	ID         string
	Source     AlertSource
	Severity   Severity
	Title      string
	Tags       []string
	ReceivedAt time.Time
}

// Deploy is an observation of a deployment's rollout state.
type Deploy struct {
	Name       string
	Namespace  string
	Image      string
	Replicas   int
	Available  int
	Revision   int
	ObservedAt time.Time
}

// Metric is a single named measurement.
type Metric struct {
	Name       string
	Value      float64
	Labels     map[string]string
	ObservedAt time.Time
}

// Fact is the tagged union the stream multiplexer and rule engine
// exchange. Exactly one of Pod/Alert/Deploy/Metric is non-nil.
type Fact struct {
	Kind   Kind
	Pod    *Pod
	Alert  *Alert
	Deploy *Deploy
	Metric *Metric
}

// NewPodFact wraps a Pod observation.
func NewPodFact(p Pod) Fact { return Fact{Kind: KindPod, Pod: &p} }

// NewAlertFact wraps an Alert observation.
func NewAlertFact(a Alert) Fact { return Fact{Kind: KindAlert, Alert: &a} }

// NewDeployFact wraps a Deploy observation.
func NewDeployFact(d Deploy) Fact { return Fact{Kind: KindDeploy, Deploy: &d} }

// NewMetricFact wraps a Metric observation.
func NewMetricFact(m Metric) Fact { return Fact{Kind: KindMetric, Metric: &m} }

// IncidentID derives the provisional grouping key a fact would be filed
// under before any rule pattern has matched it. Rule-matched incidents
// derive their own ids once a pattern fires.
func (f Fact) IncidentID() string {
	switch f.Kind {
	case KindPod:
		return "pod:" + f.Pod.Namespace + "/" + f.Pod.Name
	case KindDeploy:
		return "deploy:" + f.Deploy.Namespace + "/" + f.Deploy.Name
	case KindAlert:
		return "alert:" + f.Alert.ID
	case KindMetric:
		return "metric:" + f.Metric.Name
	default:
		return "unknown"
	}
}

// Summary renders a one-line human-readable description of f, used as
// Interpreter context and in event log details.
func (f Fact) Summary() string {
	switch f.Kind {
	case KindPod:
		return fmt.Sprintf("pod %s/%s phase=%s restarts=%d termination=%s",
			f.Pod.Namespace, f.Pod.Name, f.Pod.Phase, f.Pod.RestartCount, f.Pod.TerminationReason)
	case KindDeploy:
		return fmt.Sprintf("deploy %s/%s available=%d/%d revision=%d",
			f.Deploy.Namespace, f.Deploy.Name, f.Deploy.Available, f.Deploy.Replicas, f.Deploy.Revision)
	case KindAlert:
		return fmt.Sprintf("alert %s source=%s severity=%s title=%q", f.Alert.ID, f.Alert.Source, f.Alert.Severity, f.Alert.Title)
	case KindMetric:
		return fmt.Sprintf("metric %s=%g", f.Metric.Name, f.Metric.Value)
	default:
		return "unknown fact"
	}
}
