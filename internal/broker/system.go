package broker

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/sysgate-io/sysgate/internal/logging"
	"github.com/sysgate-io/sysgate/internal/oplog"
	"github.com/sysgate-io/sysgate/internal/permission"
	"github.com/sysgate-io/sysgate/internal/platform"
)

// ReadRegistry returns the current value of a registry entry, nil when it
// does not exist.
func (b *Broker) ReadRegistry(keyPath, valueName string) (*platform.RegistryValue, error) {
	description := fmt.Sprintf("Read registry value %s", registryTarget(keyPath, valueName))
	if !b.authorize(keyPath, permission.OpRead, description) {
		return nil, errors.New("permission denied")
	}
	return b.ops.RegistryRead(keyPath, valueName)
}

// ModifyRegistry writes a registry value, recording the prior value so the
// write can be rolled back. A first-time write has no prior state and is
// therefore not reversible.
func (b *Broker) ModifyRegistry(keyPath, valueName, value, valueType string) Result {
	prior, err := b.ops.RegistryRead(keyPath, valueName)
	if errors.Is(err, platform.ErrUnsupportedPlatform) {
		return failure(ReasonUnsupportedPlatform, "Registry operations are not supported on this platform")
	}
	if err != nil {
		return failure(ReasonExecutionError, "Failed to read current registry value: %v", err)
	}

	description := describeRegistryChange(keyPath, valueName, prior, value)
	if !b.authorize(keyPath, permission.OpWrite, description) {
		return failure(ReasonPermissionDenied, "Permission denied: %s", keyPath)
	}

	if err := b.ops.RegistryWrite(keyPath, valueName, value, valueType); err != nil {
		if errors.Is(err, platform.ErrUnsupportedPlatform) {
			return failure(ReasonUnsupportedPlatform, "Registry operations are not supported on this platform")
		}
		return failure(ReasonExecutionError, "Registry write failed: %v", err)
	}

	target := registryTarget(keyPath, valueName)
	if prior != nil {
		b.log.Record(oplog.KindRegistryWrite, target,
			&oplog.PriorState{Value: prior.Data, ValueType: prior.Type}, true)
	} else {
		b.log.Record(oplog.KindRegistryWrite, target, nil, false)
	}

	logging.Info().Str("key", keyPath).Str("value", valueName).Msg("registry value written")
	return success("Registry value %s\\%s set", keyPath, valueName)
}

// DeleteRegistryValue removes a value (or, with an empty valueName, the
// whole key). Deleting a known value records its prior state, so the
// deletion is undone by rewriting the value.
func (b *Broker) DeleteRegistryValue(keyPath, valueName string) Result {
	prior, err := b.ops.RegistryRead(keyPath, valueName)
	if errors.Is(err, platform.ErrUnsupportedPlatform) {
		return failure(ReasonUnsupportedPlatform, "Registry operations are not supported on this platform")
	}
	if err != nil {
		return failure(ReasonExecutionError, "Failed to read current registry value: %v", err)
	}

	description := fmt.Sprintf("Delete registry value %s", registryTarget(keyPath, valueName))
	if !b.authorize(keyPath, permission.OpDelete, description) {
		return failure(ReasonPermissionDenied, "Permission denied: %s", keyPath)
	}

	if err := b.ops.RegistryDelete(keyPath, valueName); err != nil {
		if errors.Is(err, platform.ErrUnsupportedPlatform) {
			return failure(ReasonUnsupportedPlatform, "Registry operations are not supported on this platform")
		}
		return failure(ReasonExecutionError, "Registry delete failed: %v", err)
	}

	target := registryTarget(keyPath, valueName)
	if valueName != "" && prior != nil {
		b.log.Record(oplog.KindRegistryWrite, target,
			&oplog.PriorState{Value: prior.Data, ValueType: prior.Type}, true)
	} else {
		b.log.Record(oplog.KindGeneric, target, nil, false)
	}
	return success("Registry value %s deleted", target)
}

// undoRegistryWrite restores the pre-mutation value of a registry target.
func (b *Broker) undoRegistryWrite(op oplog.Operation) error {
	if op.PriorState == nil {
		return errors.New("no prior state recorded")
	}
	keyPath, valueName := splitRegistryTarget(op.Target)
	return b.ops.RegistryWrite(keyPath, valueName, op.PriorState.Value, op.PriorState.ValueType)
}

// registryTarget encodes key and value name into the oplog target field.
func registryTarget(keyPath, valueName string) string {
	if valueName == "" {
		return keyPath
	}
	return keyPath + `\` + valueName
}

// splitRegistryTarget reverses registryTarget. Value names never contain a
// backslash, so the last separator is the boundary.
func splitRegistryTarget(target string) (keyPath, valueName string) {
	idx := strings.LastIndex(target, `\`)
	if idx < 0 {
		return target, ""
	}
	return target[:idx], target[idx+1:]
}

// describeRegistryChange builds the consent description. When the value
// already exists the description carries an inline before/after diff so
// the human sees exactly what changes.
func describeRegistryChange(keyPath, valueName string, prior *platform.RegistryValue, newValue string) string {
	target := registryTarget(keyPath, valueName)
	if prior == nil {
		return fmt.Sprintf("Create registry value %s = %q", target, newValue)
	}
	if prior.Data == newValue {
		return fmt.Sprintf("Rewrite registry value %s (unchanged: %q)", target, newValue)
	}
	return fmt.Sprintf("Modify registry value %s: %s", target, inlineDiff(prior.Data, newValue))
}

// inlineDiff renders a compact word-level diff, deletions as [-x-] and
// insertions as {+y+}.
func inlineDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var sb strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			sb.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			sb.WriteString("{+" + d.Text + "+}")
		default:
			sb.WriteString(d.Text)
		}
	}
	return sb.String()
}

// ManageService queries or controls an OS service. Start, stop and restart
// need administrator rights; query does not.
func (b *Broker) ManageService(name string, action platform.ServiceAction) Result {
	description := fmt.Sprintf("Service %s: %s", action, name)
	if !b.authorize("service:"+name, permission.OpExecute, description) {
		return failure(ReasonPermissionDenied, "Permission denied: service %s", name)
	}

	if action != platform.ServiceQuery {
		if res, ok := b.elevateFor(fmt.Sprintf("%s service %s", action, name)); !ok {
			return res
		}
	}

	message, err := b.ops.Service(name, action)
	if errors.Is(err, platform.ErrUnsupportedPlatform) {
		return failure(ReasonUnsupportedPlatform, "Service management is not supported on this platform")
	}
	if err != nil {
		return failure(ReasonExecutionError, "Service %s %s failed: %v", name, action, err)
	}
	if action != platform.ServiceQuery {
		b.log.Record(oplog.KindGeneric, "service:"+name, nil, false)
	}
	return success("%s", message)
}

// CreateFirewallRule adds a firewall rule. Always requires administrator
// rights.
func (b *Broker) CreateFirewallRule(rule platform.FirewallRule) Result {
	if rule.Protocol == "" {
		rule.Protocol = "TCP"
	}
	description := fmt.Sprintf("Create firewall rule %q: %s %s %s traffic", rule.Name, rule.Action, rule.Direction, rule.Protocol)
	if rule.Port > 0 {
		description = fmt.Sprintf("%s on port %d", description, rule.Port)
	}
	if !b.authorize("firewall:"+rule.Name, permission.OpWrite, description) {
		return failure(ReasonPermissionDenied, "Permission denied: firewall rule %s", rule.Name)
	}

	if res, ok := b.elevateFor("create firewall rule " + rule.Name); !ok {
		return res
	}

	if err := b.ops.AddFirewallRule(rule); err != nil {
		if errors.Is(err, platform.ErrUnsupportedPlatform) {
			return failure(ReasonUnsupportedPlatform, "Firewall management is not supported on this platform")
		}
		return failure(ReasonExecutionError, "Firewall rule creation failed: %v", err)
	}
	b.log.Record(oplog.KindGeneric, "firewall:"+rule.Name, nil, false)
	return success("Firewall rule %q created", rule.Name)
}

// CreateScheduledTask registers a task with the OS scheduler.
func (b *Broker) CreateScheduledTask(name, command, schedule string) Result {
	description := fmt.Sprintf("Create scheduled task %q running %q (%s)", name, command, schedule)
	if !b.authorize("task:"+name, permission.OpWrite, description) {
		return failure(ReasonPermissionDenied, "Permission denied: scheduled task %s", name)
	}

	if err := b.ops.CreateScheduledTask(name, command, schedule); err != nil {
		if errors.Is(err, platform.ErrUnsupportedPlatform) {
			return failure(ReasonUnsupportedPlatform, "Scheduled tasks are not supported on this platform")
		}
		return failure(ReasonExecutionError, "Scheduled task creation failed: %v", err)
	}
	b.log.Record(oplog.KindGeneric, "task:"+name, nil, false)
	return success("Scheduled task %q created", name)
}

// DeleteScheduledTask removes a task from the OS scheduler.
func (b *Broker) DeleteScheduledTask(name string) Result {
	description := fmt.Sprintf("Delete scheduled task %q", name)
	if !b.authorize("task:"+name, permission.OpDelete, description) {
		return failure(ReasonPermissionDenied, "Permission denied: scheduled task %s", name)
	}

	if err := b.ops.DeleteScheduledTask(name); err != nil {
		if errors.Is(err, platform.ErrUnsupportedPlatform) {
			return failure(ReasonUnsupportedPlatform, "Scheduled tasks are not supported on this platform")
		}
		return failure(ReasonExecutionError, "Scheduled task deletion failed: %v", err)
	}
	b.log.Record(oplog.KindGeneric, "task:"+name, nil, false)
	return success("Scheduled task %q deleted", name)
}

// openerArgv picks the platform's file opener.
func openerArgv(path string) []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"cmd", "/c", "start", "", path}
	case "darwin":
		return []string{"open", path}
	default:
		return []string{"xdg-open", path}
	}
}
