package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-recommender/internal/dto"
)

const cliSeed = `
courses:
  - {id: A, title: Python fundamentals, description: Variables and loops in Python, topics: [python]}
  - {id: B, title: Web design, description: HTML and CSS layouts, topics: [web]}
  - {id: C, title: Relational databases, description: SQL joins, topics: [databases]}
interactions:
  - {user_id: U1, course_id: B, weight: 1}
  - {user_id: U2, course_id: A, weight: 1}
`

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GEMA_REDIS_URL", "")
	t.Setenv("GEMA_MOODLE_URL", "")
	t.Setenv("GEMA_OPENAI_API_KEY", "")

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestCLI_Help_ListsCommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"train", "recommend", "sync"} {
		require.Contains(t, out, name)
	}
}

func TestCLI_Train_WritesModel(t *testing.T) {
	seed := writeTestFile(t, "seed.yaml", cliSeed)
	modelPath := filepath.Join(t.TempDir(), "model.gob")

	out, err := execute(t, "train",
		"--database", "sqlite:file:cli_train?mode=memory&cache=shared",
		"--seed", seed,
		"--model-path", modelPath,
	)
	require.NoError(t, err)

	var run dto.TrainingRunResponse
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	require.Equal(t, "cli", run.Trigger)
	require.Equal(t, 3, run.Courses)
	require.True(t, run.CollaborativeOK)
	require.FileExists(t, modelPath)
}

func TestCLI_Recommend_UsesGradeFile(t *testing.T) {
	seed := writeTestFile(t, "seed.yaml", cliSeed)
	grades := writeTestFile(t, "grades.json", `[{"item_name":"Python quiz","raw_score":30,"max_score":100}]`)

	out, err := execute(t, "recommend",
		"--database", "sqlite:file:cli_recommend?mode=memory&cache=shared",
		"--seed", seed,
		"--user", "U9",
		"--grades", grades,
		"--top-n", "2",
	)
	require.NoError(t, err)

	var resp dto.RecommendationResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, dto.RecommendationStatusOK, resp.Status)
	require.Equal(t, dto.RecommendationTypeContent, resp.RecommendationType)
	require.Equal(t, []string{"python"}, resp.WeakTopics)
	require.Len(t, resp.RecommendedCourses, 2)
	require.Equal(t, "A", resp.RecommendedCourses[0].ID)
}

func TestCLI_Recommend_RequiresUser(t *testing.T) {
	_, err := execute(t, "recommend", "--database", "sqlite:file:cli_nouser?mode=memory&cache=shared")
	require.ErrorContains(t, err, "--user")
}

func TestCLI_Sync_WithoutMoodle(t *testing.T) {
	_, err := execute(t, "sync", "--database", "sqlite:file:cli_sync?mode=memory&cache=shared")
	require.Error(t, err)
}
