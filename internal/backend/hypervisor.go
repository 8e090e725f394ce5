package backend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/codex-k8s/command-router/internal/constants"
	"github.com/codex-k8s/command-router/internal/executil"
)

// Runner executes a command; executil.Run in production.
type Runner func(ctx context.Context, cmd executil.Command, args map[string]any) (executil.Result, error)

// VM is one entry of a hypervisor listing.
type VM struct {
	Name    string `json:"name"`
	Handle  string `json:"handle,omitempty"`
	Running bool   `json:"running"`
}

// VMAction is the payload of a start or stop capability.
type VMAction struct {
	Name   string `json:"name"`
	Action string `json:"action"`
	Output string `json:"output,omitempty"`
}

// Hypervisor controls VirtualBox through VBoxManage or VMware through vmrun.
type Hypervisor struct {
	// Kind is constants.HypervisorVirtualBox or constants.HypervisorVMware.
	Kind string
	// Binary overrides the control tool path.
	Binary string
	// VMPaths maps friendly names to backend handles (VirtualBox name or UUID, VMware .vmx path).
	VMPaths map[string]string
	// Run executes commands; nil means executil.Run.
	Run Runner
}

// Action binds the hypervisor to one action so it can serve as a registry.Executor.
func (h *Hypervisor) Action(action string) (*HypervisorAction, error) {
	switch action {
	case constants.VMActionList, constants.VMActionStart, constants.VMActionStop:
	default:
		return nil, fmt.Errorf("unknown hypervisor action %q", action)
	}
	switch h.Kind {
	case constants.HypervisorVirtualBox, constants.HypervisorVMware:
	default:
		return nil, fmt.Errorf("unknown hypervisor %q", h.Kind)
	}
	return &HypervisorAction{h: h, action: action}, nil
}

// HypervisorAction is a single hypervisor operation.
type HypervisorAction struct {
	h      *Hypervisor
	action string
}

// Execute implements registry.Executor. Start reads the boolean argument
// "headless"; stop reads "force".
func (a *HypervisorAction) Execute(ctx context.Context, args map[string]any) (any, error) {
	switch a.action {
	case constants.VMActionList:
		return a.h.List(ctx)
	case constants.VMActionStart:
		name, _ := args["name"].(string)
		headless, _ := args["headless"].(bool)
		return a.h.Start(ctx, name, headless)
	default:
		name, _ := args["name"].(string)
		force, _ := args["force"].(bool)
		return a.h.Stop(ctx, name, force)
	}
}

// List returns the known machines. VMware only reports running ones.
func (h *Hypervisor) List(ctx context.Context) ([]VM, error) {
	if h.Kind == constants.HypervisorVMware {
		res, err := h.run(ctx, "list")
		if err != nil {
			return nil, err
		}
		return h.parseVMwareList(res.Output), nil
	}

	all, err := h.run(ctx, "list", "vms")
	if err != nil {
		return nil, err
	}
	running, err := h.run(ctx, "list", "runningvms")
	if err != nil {
		return nil, err
	}
	active := make(map[string]struct{})
	for _, vm := range parseVBoxList(running.Output) {
		active[vm.Handle] = struct{}{}
	}
	vms := parseVBoxList(all.Output)
	for i := range vms {
		_, vms[i].Running = active[vms[i].Handle]
	}
	return vms, nil
}

// Start powers on a machine.
func (h *Hypervisor) Start(ctx context.Context, name string, headless bool) (VMAction, error) {
	handle, err := h.resolve(name)
	if err != nil {
		return VMAction{}, err
	}
	var res executil.Result
	if h.Kind == constants.HypervisorVMware {
		mode := "gui"
		if headless {
			mode = "nogui"
		}
		res, err = h.run(ctx, "-T", "ws", "start", handle, mode)
	} else {
		mode := "gui"
		if headless {
			mode = "headless"
		}
		res, err = h.run(ctx, "startvm", handle, "--type", mode)
	}
	if err != nil {
		return VMAction{}, err
	}
	return VMAction{Name: name, Action: constants.VMActionStart, Output: strings.TrimSpace(res.Output)}, nil
}

// Stop shuts a machine down, gracefully unless force is set.
func (h *Hypervisor) Stop(ctx context.Context, name string, force bool) (VMAction, error) {
	handle, err := h.resolve(name)
	if err != nil {
		return VMAction{}, err
	}
	var res executil.Result
	if h.Kind == constants.HypervisorVMware {
		mode := "soft"
		if force {
			mode = "hard"
		}
		res, err = h.run(ctx, "-T", "ws", "stop", handle, mode)
	} else {
		mode := "acpipowerbutton"
		if force {
			mode = "poweroff"
		}
		res, err = h.run(ctx, "controlvm", handle, mode)
	}
	if err != nil {
		return VMAction{}, err
	}
	return VMAction{Name: name, Action: constants.VMActionStop, Output: strings.TrimSpace(res.Output)}, nil
}

func (h *Hypervisor) resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &Error{Backend: constants.BackendHypervisor, Detail: "vm name is empty"}
	}
	handle, ok := h.VMPaths[name]
	if !ok {
		for key, value := range h.VMPaths {
			if strings.EqualFold(key, name) {
				handle, ok = value, true
				break
			}
		}
	}
	if !ok {
		if h.Kind == constants.HypervisorVMware && !strings.HasSuffix(strings.ToLower(name), ".vmx") {
			return "", &Error{Backend: constants.BackendHypervisor, Detail: fmt.Sprintf("no .vmx path configured for %q", name)}
		}
		handle = name
	}
	// The handle is a positional argv element; a leading dash would be parsed as an option.
	if strings.HasPrefix(strings.TrimSpace(handle), "-") {
		return "", &Error{Backend: constants.BackendHypervisor, Detail: fmt.Sprintf("invalid vm name %q", name)}
	}
	return handle, nil
}

func (h *Hypervisor) binary() string {
	if h.Binary != "" {
		return h.Binary
	}
	if h.Kind == constants.HypervisorVMware {
		return "vmrun"
	}
	return "VBoxManage"
}

func (h *Hypervisor) run(ctx context.Context, argv ...string) (executil.Result, error) {
	run := h.Run
	if run == nil {
		run = executil.Run
	}
	res, err := run(ctx, executil.Command{Path: h.binary(), Args: argv, Literal: true}, nil)
	if err != nil {
		if ctx.Err() != nil {
			return res, err
		}
		var exitErr *executil.ExitError
		if errors.As(err, &exitErr) {
			return res, &Error{Backend: constants.BackendHypervisor, Detail: exitErr.Error()}
		}
		return res, fail(constants.BackendHypervisor, err, "run %s", h.binary())
	}
	return res, nil
}

// parseVBoxList parses `VBoxManage list vms` lines of the form "name" {uuid}.
func parseVBoxList(output string) []VM {
	var vms []VM
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, `"`) {
			continue
		}
		end := strings.LastIndex(line, `"`)
		if end <= 0 {
			continue
		}
		vm := VM{Name: line[1:end]}
		rest := strings.TrimSpace(line[end+1:])
		vm.Handle = strings.Trim(rest, "{}")
		if vm.Handle == "" {
			vm.Handle = vm.Name
		}
		vms = append(vms, vm)
	}
	return vms
}

// parseVMwareList parses `vmrun list`, which prints a count line followed by .vmx paths.
func (h *Hypervisor) parseVMwareList(output string) []VM {
	byPath := make(map[string]string, len(h.VMPaths))
	for name, path := range h.VMPaths {
		byPath[path] = name
	}
	var vms []VM
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "Total running VMs") {
			continue
		}
		name, ok := byPath[line]
		if !ok {
			base := line[strings.LastIndexAny(line, `/\`)+1:]
			name = strings.TrimSuffix(base, filepath.Ext(base))
		}
		vms = append(vms, VM{Name: name, Handle: line, Running: true})
	}
	return vms
}
