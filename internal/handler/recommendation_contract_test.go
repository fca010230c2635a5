package handler_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-recommender/internal/dto"
	"github.com/noah-isme/gema-recommender/internal/handler"
)

func TestRecommendationResponseContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("testdata", "recommendation_response.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + filepath.ToSlash(schemaPath))
	require.NoError(t, err)

	for name, response := range map[string]dto.RecommendationResponse{
		"ranked": sampleRecommendationResponse(),
		"empty": {
			Status:             dto.RecommendationStatusNone,
			RecommendationType: dto.RecommendationTypeNone,
			RecommendedCourses: []dto.RecommendedCourse{},
			Explanation:        "nothing yet",
			WeakTopics:         []string{},
			StrongTopics:       []string{},
			Degraded:           []string{"catalog"},
		},
	} {
		t.Run(name, func(t *testing.T) {
			app := fiber.New()
			handler.NewRecommendationHandler(&stubRecommendationService{response: response}, zerolog.Nop()).Register(app.Group("/api/v2"))

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/students/U1/recommendations", nil))
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			resp.Body.Close()

			var payload interface{}
			require.NoError(t, json.Unmarshal(body, &payload))
			require.NoError(t, schema.Validate(payload))
		})
	}
}
