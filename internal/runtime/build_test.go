package runtime_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/command-router/configs"
	"github.com/codex-k8s/command-router/internal/backend"
	"github.com/codex-k8s/command-router/internal/catalog"
	"github.com/codex-k8s/command-router/internal/executil"
	"github.com/codex-k8s/command-router/internal/metrics"
	"github.com/codex-k8s/command-router/internal/protocol"
	"github.com/codex-k8s/command-router/internal/recorder"
	"github.com/codex-k8s/command-router/internal/runtime"
	"github.com/codex-k8s/command-router/internal/secrets"
	"github.com/codex-k8s/command-router/internal/templates"
)

type fakeHypervisor struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeHypervisor) run(_ context.Context, cmd executil.Command, _ map[string]any) (executil.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{cmd.Path}, cmd.Args...))
	if len(cmd.Args) == 2 && cmd.Args[0] == "list" {
		if cmd.Args[1] == "runningvms" {
			return executil.Result{Output: `"Ubuntu" {uuid-1}`}, nil
		}
		return executil.Result{Output: "\"Ubuntu\" {uuid-1}\n\"Windows 11\" {uuid-2}\n"}, nil
	}
	return executil.Result{Output: "ok"}, nil
}

func loadDefault(t *testing.T) *catalog.Catalog {
	t.Helper()
	return loadEmbedded(t, configs.DefaultCatalog)
}

func loadEmbedded(t *testing.T, name string) *catalog.Catalog {
	t.Helper()
	raw, err := configs.Load(name)
	require.NoError(t, err)
	cat, err := catalog.LoadBytes(name, raw)
	require.NoError(t, err)
	return cat
}

func build(t *testing.T, hv *fakeHypervisor) (*runtime.Router, *recorder.Memory) {
	t.Helper()
	return buildCatalog(t, hv, loadDefault(t))
}

func buildCatalog(t *testing.T, hv *fakeHypervisor, cat *catalog.Catalog) (*runtime.Router, *recorder.Memory) {
	t.Helper()
	bundle, err := templates.Load("pt")
	require.NoError(t, err)
	store := recorder.NewMemory()
	router, err := runtime.Builder{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Templates: bundle,
		Metrics:   metrics.New(),
		Secrets:   secrets.Static{"search": "search-key"},
		VMPaths:   map[string]string{"ubuntu": "uuid-1"},
		Store:     store,
		Runner:    hv.run,
	}.Build(context.Background(), cat)
	require.NoError(t, err)
	t.Cleanup(func() { _ = router.Close() })
	return router, store
}

func TestBuildRegistersCatalogInOrder(t *testing.T) {
	router, _ := build(t, &fakeHypervisor{})
	var names []string
	for _, d := range router.Engine.Capabilities() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{
		"list_vms", "start_vm", "stop_vm", "list_processes",
		"list_directory", "start_program", "web_search",
	}, names)

	startVM, err := router.Registry.Lookup("start_vm")
	require.NoError(t, err)
	require.Len(t, startVM.Schema, 2)
	assert.True(t, startVM.Schema[0].Required)
	assert.NotNil(t, startVM.Schema[0].Constraints.Pattern)
	assert.Equal(t, false, startVM.Schema[1].Default)
}

func TestDefaultCatalogScenario(t *testing.T) {
	hv := &fakeHypervisor{}
	router, store := build(t, hv)
	ctx := context.Background()

	out := router.Engine.Submit(ctx, "cli", "inicie a VM")
	assert.Equal(t, protocol.StatusRejected, out.Status)
	assert.Equal(t, protocol.ReasonMissingArgument, out.Reason)
	assert.Equal(t, "name", out.Argument)

	out = router.Engine.Submit(ctx, "cli", "faça café")
	assert.Equal(t, protocol.ReasonUnknownCapability, out.Reason)
	assert.Empty(t, hv.calls)

	out = router.Engine.Submit(ctx, "cli", "Inicie a VM Ubuntu")
	require.Equal(t, protocol.StatusSuccess, out.Status, out.Error)
	assert.Equal(t, "start_vm", out.Capability)
	require.Len(t, hv.calls, 1)
	assert.Equal(t, []string{"VBoxManage", "startvm", "uuid-1", "--type", "gui"}, hv.calls[0])

	out = router.Engine.Submit(ctx, "cli", "quais vms existem?")
	require.Equal(t, protocol.StatusSuccess, out.Status, out.Error)
	vms, ok := out.Result.([]backend.VM)
	require.True(t, ok)
	require.Len(t, vms, 2)
	assert.True(t, vms[0].Running)
	assert.False(t, vms[1].Running)

	assert.Len(t, store.All(), 4)
}

func TestDefaultCatalogRejectsOptionLikeNames(t *testing.T) {
	hv := &fakeHypervisor{}
	router, store := build(t, hv)
	ctx := context.Background()

	for _, text := range []string{"desligue a vm --type", "inicie a vm -headless"} {
		out := router.Engine.Submit(ctx, "cli", text)
		assert.Equal(t, protocol.StatusRejected, out.Status, text)
		assert.Equal(t, protocol.ReasonInvalidArgument, out.Reason, text)
	}
	out := router.Engine.Submit(ctx, "cli", "abra -rf")
	assert.Equal(t, protocol.StatusRejected, out.Status)

	assert.Empty(t, hv.calls)
	assert.Len(t, store.All(), 3)
}

func TestWindowsCatalog(t *testing.T) {
	t.Setenv("ROUTER_HYPERVISOR_BIN", "")
	_ = os.Unsetenv("ROUTER_HYPERVISOR_BIN")
	hv := &fakeHypervisor{}
	router, _ := buildCatalog(t, hv, loadEmbedded(t, configs.WindowsCatalog))
	ctx := context.Background()

	out := router.Engine.Submit(ctx, "cli", "Inicie a VM Ubuntu")
	require.Equal(t, protocol.StatusSuccess, out.Status, out.Error)
	require.Len(t, hv.calls, 1)
	assert.Equal(t, []string{`C:\Program Files\Oracle\VirtualBox\VBoxManage.exe`, "startvm", "uuid-1", "--type", "gui"}, hv.calls[0])

	out = router.Engine.Submit(ctx, "cli", "abra -rf")
	assert.Equal(t, protocol.ReasonInvalidArgument, out.Reason)

	listDir, err := router.Registry.Lookup("list_directory")
	require.NoError(t, err)
	assert.Equal(t, ".", listDir.Schema[0].Default)
	assert.True(t, listDir.Schema[0].Constraints.Pattern.MatchString(`C:\Users\Public`))
	assert.False(t, listDir.Schema[0].Constraints.Pattern.MatchString(`C:\x & del *`))
}

func TestDefaultCatalogWebSearch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "golang generics", r.URL.Query().Get("q"))
		assert.Equal(t, "Bearer search-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []any{
				map[string]any{"title": "Go generics", "url": "https://go.dev/doc/tutorial/generics", "content": " tutorial "},
			},
		})
	}))
	defer srv.Close()
	t.Setenv("ROUTER_SEARCH_URL", srv.URL+"/search")

	router, store := build(t, &fakeHypervisor{})
	for i := 0; i < 2; i++ {
		out := router.Engine.Submit(context.Background(), "cli", "pesquise por golang generics")
		require.Equal(t, protocol.StatusSuccess, out.Status, out.Error)
		results := out.Result.([]backend.SearchResult)
		require.Len(t, results, 1)
		assert.Equal(t, "tutorial", results[0].Snippet)
	}
	assert.Equal(t, int32(1), hits.Load(), "second search is served from the cache")
	assert.Len(t, store.All(), 2)
}

func TestBuildRejectsMissingStore(t *testing.T) {
	_, err := runtime.Builder{}.Build(context.Background(), loadDefault(t))
	require.Error(t, err)
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	b := runtime.Builder{Store: recorder.NewMemory()}
	b.Interpreter.Provider = "telepathy"
	_, err := b.Build(context.Background(), loadDefault(t))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "interpreter"))
}
