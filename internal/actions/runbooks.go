package actions

import "github.com/sentineloop/incident-agent/internal/effect"

// DefaultRegistry is the full set of actions known to the planner and
// the LLM safety gate — the seed runbook steps plus the Analyzer's
// observation-only tools and a representative Irreversible action, so
// the planner can always demonstrate it never prefers an Irreversible
// path over an equal-or-cheaper Mutate-only one.
func DefaultRegistry() Registry {
	return NewRegistry(
		getPodLogs,
		getPodEvents,
		getDeployHistory,
		getMemoryMetrics,
		rollbackDeployment,
		restartDeployment,
		tuneMemoryLimits,
		waitForRollout,
		verifyRecovery,
		deletePVC,
	)
}

var getPodLogs = Schema{
	Name:          "get_pod_logs",
	Effect:        effect.Observe,
	Preconditions: nil,
	AddEffects:    []string{"pod_logs_collected"},
	BaseCost:      1,
	Description:   "fetch recent container logs for the affected pod",
}

var getPodEvents = Schema{
	Name:          "get_pod_events",
	Effect:        effect.Observe,
	Preconditions: []string{"pod_logs_collected"},
	AddEffects:    []string{"pod_events_collected"},
	BaseCost:      1,
	Description:   "fetch recent Kubernetes events for the affected pod",
}

var getDeployHistory = Schema{
	Name:          "get_deploy_history",
	Effect:        effect.Observe,
	Preconditions: []string{"pod_events_collected"},
	AddEffects:    []string{"deploy_history_collected"},
	BaseCost:      1,
	Description:   "fetch revision history for the affected deployment",
}

var getMemoryMetrics = Schema{
	Name:          "get_memory_metrics",
	Effect:        effect.Observe,
	Preconditions: []string{"pod_logs_collected"},
	AddEffects:    []string{"memory_metrics_collected"},
	BaseCost:      1,
	Description:   "fetch recent memory usage metrics for the affected pod",
}

var rollbackDeployment = Schema{
	Name:          "rollback_deployment",
	Effect:        effect.Mutate,
	Preconditions: []string{"deploy_history_collected"},
	AddEffects:    []string{"deployment_rolled_back", "remediation_applied"},
	BaseCost:      1,
	Description:   "roll back the deployment to its previous stable revision",
}

var restartDeployment = Schema{
	Name:          "restart_deployment",
	Effect:        effect.Mutate,
	Preconditions: []string{"pod_events_collected"},
	AddEffects:    []string{"restart_issued", "remediation_applied"},
	BaseCost:      1,
	Description:   "restart the deployment's pods in place",
}

var tuneMemoryLimits = Schema{
	Name:          "tune_memory_limits",
	Effect:        effect.Mutate,
	Preconditions: []string{"memory_metrics_collected"},
	AddEffects:    []string{"memory_limits_tuned", "remediation_applied"},
	BaseCost:      1,
	Description:   "raise the pod's memory limit based on observed usage",
}

var waitForRollout = Schema{
	Name:          "wait_for_rollout",
	Effect:        effect.Observe,
	Preconditions: []string{"deployment_rolled_back"},
	AddEffects:    []string{"rollout_complete", "remediation_applied"},
	BaseCost:      1,
	Description:   "poll rollout status until the new revision is fully available",
}

var verifyRecovery = Schema{
	Name:          "verify_recovery",
	Effect:        effect.Observe,
	Preconditions: []string{"remediation_applied"},
	AddEffects:    []string{"recovery_verified"},
	BaseCost:      1,
	Description:   "confirm the pod/deployment has returned to a healthy state",
}

// deletePVC is the registry's representative Irreversible action: no
// runbook targets it, but its presence lets the planner and its tests
// demonstrate that an equal-goal Mutate-only path is always preferred.
var deletePVC = Schema{
	Name:          "delete_pvc",
	Effect:        effect.Irreversible,
	Preconditions: []string{"pod_logs_collected"},
	AddEffects:    []string{"recovery_verified"},
	BaseCost:      1,
	Description:   "delete the pod's persistent volume claim to force reprovisioning",
}

// CrashloopRunbook is the fixed 6-step remediation for a crash-looping
// pod with a suspect deployment: collect evidence, roll back, wait for
// the rollout, then verify recovery.
func CrashloopRunbook() Runbook {
	return Runbook{
		Name: "crashloop_runbook",
		Goal: "recovery_verified",
		Steps: []Schema{
			getPodLogs,
			getPodEvents,
			getDeployHistory,
			rollbackDeployment,
			waitForRollout,
			verifyRecovery,
		},
	}
}

// OOMKillRunbook is the fixed 4-step remediation for an OOM-killed pod:
// collect evidence, tune memory limits, then verify recovery.
func OOMKillRunbook() Runbook {
	return Runbook{
		Name: "oomkill_runbook",
		Goal: "recovery_verified",
		Steps: []Schema{
			getPodLogs,
			getMemoryMetrics,
			tuneMemoryLimits,
			verifyRecovery,
		},
	}
}

// SeedRunbooks returns every built-in runbook, keyed by the incident
// pattern name the rule engine derives.
func SeedRunbooks() map[string]Runbook {
	return map[string]Runbook{
		"crashloop": CrashloopRunbook(),
		"oomkill":   OOMKillRunbook(),
	}
}
