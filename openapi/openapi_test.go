package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type issueRequest struct {
	Email   string `json:"email" validate:"required,email,max=320" doc:"Recipient address" example:"user@example.com"`
	Purpose string `json:"purpose" validate:"required,max=64"`
	Note    string `json:"note,omitempty"`
	Secret  string `json:"-"`
}

type issueResponse struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

type nested struct {
	Items []issueResponse `json:"items"`
	Next  *issueResponse  `json:"next,omitempty"`
	Count uint            `json:"count"`
}

func TestNew(t *testing.T) {
	api := New("passcode API", "1.0.0").
		Description("desc").
		Server("http://localhost:8080", "local").
		Tag("otp", "codes")

	spec := api.Spec()
	assert.Equal(t, "3.0.3", spec.OpenAPI)
	assert.Equal(t, "passcode API", spec.Info.Title)
	assert.Equal(t, "1.0.0", spec.Info.Version)
	assert.Equal(t, "desc", spec.Info.Description)
	require.Len(t, spec.Servers, 1)
	assert.Equal(t, "http://localhost:8080", spec.Servers[0].URL)
	require.Len(t, spec.Tags, 1)
	assert.Equal(t, "otp", spec.Tags[0].Name)
}

func TestDocument_BodyAndResponses(t *testing.T) {
	api := New("test", "1")

	api.Document(http.MethodPost, "/otp/issue").
		Summary("Issue").
		OperationID("issueCode").
		Tags("otp").
		Body(issueRequest{}, "subject").
		Response(http.StatusAccepted, issueResponse{}, "issued").
		Response(http.StatusTooManyRequests, nil, "throttled").
		ResponseHeaders(http.StatusTooManyRequests, map[string]string{"Retry-After": "seconds"}).
		Build()

	item := api.Spec().Paths.Find("/otp/issue")
	require.NotNil(t, item)
	require.NotNil(t, item.Post)
	assert.Equal(t, "issueCode", item.Post.OperationID)
	assert.Equal(t, []string{"otp"}, item.Post.Tags)

	body := item.Post.RequestBody.Value
	assert.True(t, body.Required)
	assert.Equal(t, "#/components/schemas/issueRequest", body.Content["application/json"].Schema.Ref)

	accepted := item.Post.Responses.Value("202")
	require.NotNil(t, accepted)
	assert.Equal(t, "#/components/schemas/issueResponse", accepted.Value.Content["application/json"].Schema.Ref)

	throttled := item.Post.Responses.Value("429")
	require.NotNil(t, throttled)
	assert.Nil(t, throttled.Value.Content)
	assert.Contains(t, throttled.Value.Headers, "Retry-After")
}

func TestSchemaGeneration(t *testing.T) {
	api := New("test", "1")
	api.Document(http.MethodPost, "/x").Body(issueRequest{}, "").Build()

	schema := api.Spec().Components.Schemas["issueRequest"].Value
	require.NotNil(t, schema)

	assert.ElementsMatch(t, []string{"email", "purpose"}, schema.Required)
	assert.NotContains(t, schema.Properties, "Secret")
	assert.Contains(t, schema.Properties, "note")

	email := schema.Properties["email"].Value
	assert.Equal(t, "email", email.Format)
	assert.Equal(t, "Recipient address", email.Description)
	assert.Equal(t, "user@example.com", email.Example)
	require.NotNil(t, email.MaxLength)
	assert.Equal(t, uint64(320), *email.MaxLength)
}

func TestSchemaGeneration_Nested(t *testing.T) {
	api := New("test", "1")
	api.Document(http.MethodGet, "/list").Response(http.StatusOK, nested{}, "ok").Build()

	schemas := api.Spec().Components.Schemas
	require.Contains(t, schemas, "nested")
	require.Contains(t, schemas, "issueResponse")

	props := schemas["nested"].Value.Properties
	assert.True(t, props["items"].Value.Type.Is("array"))
	assert.Equal(t, "#/components/schemas/issueResponse", props["items"].Value.Items.Ref)
	assert.True(t, props["next"].Value.Nullable)
	require.NotNil(t, props["count"].Value.Min)
	assert.Equal(t, 0.0, *props["count"].Value.Min)

	expires := schemas["issueResponse"].Value.Properties["expires_at"].Value
	assert.Equal(t, "date-time", expires.Format)
}

func TestAddSchema(t *testing.T) {
	api := New("test", "1")
	api.AddSchema("IssueResponse", &issueResponse{}).AddSchema("Empty", nil)

	schemas := api.Spec().Components.Schemas
	assert.Contains(t, schemas, "IssueResponse")
	assert.Contains(t, schemas, "Empty")

	api.Document(http.MethodGet, "/x").Response(http.StatusOK, issueResponse{}, "ok").Build()
	resp := api.Spec().Paths.Find("/x").Get.Responses.Value("200")
	assert.Equal(t, "#/components/schemas/IssueResponse", resp.Value.Content["application/json"].Schema.Ref)
}

func TestRegister(t *testing.T) {
	api := New("test", "1")
	e := echo.New()
	api.Register(e)

	t.Run("json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, JSONPath, nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var doc map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Equal(t, "3.0.3", doc["openapi"])
		assert.Contains(t, doc["paths"], JSONPath)
		assert.Contains(t, doc["paths"], YAMLPath)
	})

	t.Run("yaml", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, YAMLPath, nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/yaml", rec.Header().Get(echo.HeaderContentType))
		var doc map[string]any
		require.NoError(t, yaml.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Equal(t, "test", doc["info"].(map[string]any)["title"])
	})
}

func TestSpecValidates(t *testing.T) {
	api := New("test", "1")
	api.Document(http.MethodPost, "/otp/issue").
		Body(issueRequest{}, "subject").
		Response(http.StatusAccepted, issueResponse{}, "issued").
		Build()
	api.Document(http.MethodGet, "/list").
		Response(http.StatusOK, nested{}, "reuses issueResponse").
		Build()

	assert.NoError(t, api.Spec().Validate(t.Context()))

	data, err := api.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"$ref": "#/components/schemas/issueRequest"`)

	loaded, err := openapi3.NewLoader().LoadFromData(data)
	require.NoError(t, err)
	assert.NoError(t, loaded.Validate(t.Context()))
}
