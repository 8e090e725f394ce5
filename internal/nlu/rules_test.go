package nlu_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/command-router/internal/nlu"
)

func assistantRules(t *testing.T) *nlu.Rules {
	t.Helper()
	rules, err := nlu.NewRules([]nlu.Rule{
		{Capability: "list_processes", Pattern: `\b(liste|listar|mostre|list|show)\b.*\bprocess`},
		{Capability: "start_vm", Pattern: `\b(inicie|iniciar|ligue|start)\b.*\bvms?\b(?:\s+(?P<name>[\w.-]+))?`},
		{Capability: "list_directory", Pattern: `\b(liste|listar|list)\b.*\b(arquivos|files)\b(?:\s+(?:em|de|in)\s+(?P<path>\S+))?`, Confidence: 0.8},
	})
	require.NoError(t, err)
	return rules
}

func TestRulesMatchAccentedText(t *testing.T) {
	interp, err := assistantRules(t).Interpret(context.Background(), "Liste os processos em execução")
	require.NoError(t, err)
	assert.Equal(t, "list_processes", interp.Candidate)
	assert.InDelta(t, 0.9, interp.Confidence, 1e-9)
	assert.Empty(t, interp.Arguments)
}

func TestRulesOptionalGroupAbsent(t *testing.T) {
	interp, err := assistantRules(t).Interpret(context.Background(), "inicie a VM")
	require.NoError(t, err)
	assert.Equal(t, "start_vm", interp.Candidate)
	assert.NotContains(t, interp.Arguments, "name")
}

func TestRulesKeepOriginalSpelling(t *testing.T) {
	interp, err := assistantRules(t).Interpret(context.Background(), "Inicie a VM Ubuntu-Dev")
	require.NoError(t, err)
	assert.Equal(t, "start_vm", interp.Candidate)
	assert.Equal(t, "Ubuntu-Dev", interp.Arguments["name"])
}

func TestRulesExtractAfterAccents(t *testing.T) {
	interp, err := assistantRules(t).Interpret(context.Background(), "Ligue a máquina vm Ação")
	require.NoError(t, err)
	assert.Equal(t, "start_vm", interp.Candidate)
	assert.Equal(t, "Ação", interp.Arguments["name"])
}

func TestRulesCustomConfidence(t *testing.T) {
	interp, err := assistantRules(t).Interpret(context.Background(), "listar arquivos em /tmp")
	require.NoError(t, err)
	assert.Equal(t, "list_directory", interp.Candidate)
	assert.Equal(t, "/tmp", interp.Arguments["path"])
	assert.InDelta(t, 0.8, interp.Confidence, 1e-9)
}

func TestRulesNoMatch(t *testing.T) {
	interp, err := assistantRules(t).Interpret(context.Background(), "faça café")
	require.NoError(t, err)
	assert.Empty(t, interp.Candidate)
	assert.Zero(t, interp.Confidence)
	assert.Equal(t, "faça café", interp.RawText)
}

func TestNewRulesRejectsBadPattern(t *testing.T) {
	_, err := nlu.NewRules([]nlu.Rule{{Capability: "x", Pattern: "("}})
	require.Error(t, err)

	_, err = nlu.NewRules([]nlu.Rule{{Pattern: "x"}})
	require.Error(t, err)
}

func TestFold(t *testing.T) {
	assert.Equal(t, "execucao nao cafe", nlu.Fold("Execução NÃO Café"))
}

func TestChainFallsThrough(t *testing.T) {
	empty, err := nlu.NewRules(nil)
	require.NoError(t, err)
	chain := nlu.Chain{empty, assistantRules(t)}

	interp, err := chain.Interpret(context.Background(), "mostre os processos")
	require.NoError(t, err)
	assert.Equal(t, "list_processes", interp.Candidate)
}
