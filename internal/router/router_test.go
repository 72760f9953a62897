package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	_ "sadar/docs"
	"sadar/internal/auth"
	"sadar/internal/cache"
	"sadar/internal/classifier"
	"sadar/internal/config"
	"sadar/internal/handler"
	"sadar/internal/logutil"
	"sadar/internal/model"
	"sadar/internal/repository"
	"sadar/internal/router"
	"sadar/internal/service"
	"sadar/internal/testutil"
)

const testSecret = "router-test-secret"

// fixedClassifier answers every request with the same prediction.
type fixedClassifier struct {
	pred classifier.Prediction
}

func (f fixedClassifier) Classify(_ context.Context, x []float64) (classifier.Prediction, error) {
	if len(x) != model.FeatureCount {
		return classifier.Prediction{}, classifier.ErrFeatureCount
	}
	return f.pred, nil
}

type testServer struct {
	e      *echo.Echo
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gormDB := testutil.OpenSQLite(t)
	store, err := cache.NewMemory(time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	userRepo := repository.NewUserRepository(gormDB)
	tokens := auth.NewTokenManager(testSecret, time.Hour)
	authService := service.NewAuthService(userRepo, auth.NewPasswordHasher(bcrypt.MinCost), tokens, 4)
	userService := service.NewUserService(userRepo, store)
	predictionService := service.NewPredictionService(
		fixedClassifier{pred: classifier.Prediction{Label: "sedang", Confidence: 0.73, Version: "test"}},
		repository.NewHistoryRepository(gormDB),
	)
	gate := auth.NewGate(tokens, userService, nil)

	e := echo.New()
	cfg := &config.Config{CORS: config.CORS{AllowOrigins: []string{"https://sadar-backend.vercel.app"}}}
	router.Register(e, cfg, logutil.New("error", "json", nil), gate,
		handler.NewAuthHandler(authService),
		handler.NewUserHandler(userService, authService),
		handler.NewPredictionHandler(predictionService),
	)
	return &testServer{e: e, tokens: tokens}
}

func decodeInto(v interface{}) apitest.Assert {
	return func(res *http.Response, _ *http.Request) error {
		return json.NewDecoder(res.Body).Decode(v)
	}
}

func credentials(username, password string) string {
	b, _ := json.Marshal(map[string]string{"username": username, "password": password})
	return string(b)
}

func (s *testServer) register(t *testing.T, username, password string) {
	t.Helper()
	apitest.New().
		Handler(s.e).
		Post("/register").
		JSON(credentials(username, password)).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.message", "registered")).
		End()
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	var tok handler.TokenResponse
	apitest.New().
		Handler(s.e).
		Post("/login").
		JSON(credentials(username, password)).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.token_type", "bearer")).
		Assert(decodeInto(&tok)).
		End()
	require.NotEmpty(t, tok.AccessToken)
	return tok.AccessToken
}

const predictBody = `{
	"jenis_kelamin": 1, "umur": 16, "tingkatan_kelas": 11, "nilai": 82.5,
	"q1": 0, "q2": 1, "q3": 2, "q4": 3, "q5": 0, "q6": 1, "q7": 2, "q8": 3, "q9": 0
}`

func TestAPI_EndToEnd(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", "pw1234")
	token := s.login(t, "alice", "pw1234")
	bearer := "Bearer " + token

	apitest.New().
		Handler(s.e).
		Get("/me").
		Header("Authorization", bearer).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.username", "alice")).
		End()

	apitest.New().
		Handler(s.e).
		Post("/predict").
		Header("Authorization", bearer).
		JSON(predictBody).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.predicted_class", "sedang")).
		Assert(jsonpath.Equal("$.confidence", 0.73)).
		End()

	apitest.New().
		Handler(s.e).
		Get("/history").
		Header("Authorization", bearer).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Len("$", 1)).
		Assert(jsonpath.Equal("$[0].predicted_class", "sedang")).
		Assert(jsonpath.Equal("$[0].input.umur", float64(16))).
		Assert(jsonpath.Present("$[0].id")).
		Assert(jsonpath.Present("$[0].created_at")).
		End()
}

func TestAPI_Register(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", "pw1234")

	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "username taken", body: `{"username":"alice","password":"other1"}`, code: "USERNAME_TAKEN"},
		{name: "weak password", body: `{"username":"bob","password":"abc"}`, code: "WEAK_PASSWORD"},
		{name: "weak multibyte password", body: `{"username":"bob","password":"éé"}`, code: "WEAK_PASSWORD"},
		{name: "missing username", body: `{"password":"pw1234"}`, code: "VALIDATION_ERROR"},
		{name: "bad email", body: `{"username":"carol","password":"pw1234","email":"nope"}`, code: "VALIDATION_ERROR"},
		{name: "not json", body: `{`, code: "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apitest.New().
				Handler(s.e).
				Post("/register").
				JSON(tt.body).
				Expect(t).
				Status(http.StatusBadRequest).
				Assert(jsonpath.Equal("$.code", tt.code)).
				Assert(jsonpath.Present("$.detail")).
				End()
		})
	}
}

func TestAPI_LoginFailuresLookTheSame(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", "pw1234")

	var wrongPassword, unknownUser map[string]string
	apitest.New().
		Handler(s.e).
		Post("/login").
		JSON(`{"username":"alice","password":"nope12"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		Assert(decodeInto(&wrongPassword)).
		End()
	apitest.New().
		Handler(s.e).
		Post("/login").
		JSON(`{"username":"ghost","password":"nope12"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		Assert(decodeInto(&unknownUser)).
		End()

	var emptyPassword map[string]string
	apitest.New().
		Handler(s.e).
		Post("/login").
		JSON(`{"username":"alice","password":""}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		Assert(decodeInto(&emptyPassword)).
		End()

	assert.Equal(t, wrongPassword, unknownUser)
	assert.Equal(t, wrongPassword, emptyPassword)
	assert.Equal(t, "INVALID_CREDENTIALS", unknownUser["code"])
}

func TestAPI_ProtectedRoutesRejectBadCredentials(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", "pw1234")
	valid := s.login(t, "alice", "pw1234")

	expired, err := s.tokens.Issue("alice", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	ghost, err := s.tokens.Issue("ghost", time.Now())
	require.NoError(t, err)
	foreign, err := auth.NewTokenManager("another-secret", time.Hour).Issue("alice", time.Now())
	require.NoError(t, err)
	tampered := []byte(valid)
	tampered[len(tampered)-2] ^= 0x01

	headers := map[string]string{
		"missing":        "",
		"empty bearer":   "Bearer ",
		"wrong scheme":   "Basic " + valid,
		"lowercase":      "bearer " + valid,
		"no scheme":      valid,
		"garbage":        "Bearer garbage",
		"expired":        "Bearer " + expired,
		"unknown user":   "Bearer " + ghost,
		"foreign secret": "Bearer " + foreign,
		"tampered":       "Bearer " + string(tampered),
	}
	routes := []struct {
		method, path string
	}{
		{http.MethodGet, "/me"},
		{http.MethodPut, "/me"},
		{http.MethodPost, "/change-password"},
		{http.MethodPost, "/predict"},
		{http.MethodGet, "/history"},
	}

	for _, route := range routes {
		for name, header := range headers {
			t.Run(route.method+" "+route.path+" "+name, func(t *testing.T) {
				req := apitest.New().Handler(s.e).Method(route.method).URL(route.path)
				if header != "" {
					req = req.Header("Authorization", header)
				}
				req.Expect(t).
					Status(http.StatusUnauthorized).
					Body(`{"detail":"unauthorized","code":"UNAUTHORIZED"}`).
					End()
			})
		}
	}
}

func TestAPI_HistoryIsScopedToCaller(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", "pw1234")
	s.register(t, "bob", "pw5678")
	alice := "Bearer " + s.login(t, "alice", "pw1234")
	bob := "Bearer " + s.login(t, "bob", "pw5678")

	for i := 0; i < 2; i++ {
		apitest.New().Handler(s.e).Post("/predict").Header("Authorization", alice).JSON(predictBody).
			Expect(t).Status(http.StatusOK).End()
	}
	apitest.New().Handler(s.e).Post("/predict").Header("Authorization", bob).JSON(predictBody).
		Expect(t).Status(http.StatusOK).End()

	apitest.New().Handler(s.e).Get("/history").Header("Authorization", alice).
		Expect(t).Status(http.StatusOK).Assert(jsonpath.Len("$", 2)).End()
	apitest.New().Handler(s.e).Get("/history").Header("Authorization", bob).
		Expect(t).Status(http.StatusOK).Assert(jsonpath.Len("$", 1)).End()
	apitest.New().Handler(s.e).Get("/history").Query("limit", "1").Header("Authorization", alice).
		Expect(t).Status(http.StatusOK).Assert(jsonpath.Len("$", 1)).End()
	apitest.New().Handler(s.e).Get("/history").Query("limit", "zero").Header("Authorization", alice).
		Expect(t).Status(http.StatusBadRequest).Assert(jsonpath.Equal("$.code", "VALIDATION_ERROR")).End()
}

func TestAPI_PredictValidation(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", "pw1234")
	bearer := "Bearer " + s.login(t, "alice", "pw1234")

	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{name: "missing field", body: `{"jenis_kelamin":1,"tingkatan_kelas":11,"nilai":80,"q1":0,"q2":0,"q3":0,"q4":0,"q5":0,"q6":0,"q7":0,"q8":0,"q9":0}`, detail: "umur: field is required"},
		{name: "wrong type", body: `{"jenis_kelamin":"male"}`, detail: "invalid request body"},
		{name: "empty object", body: `{}`, detail: "jenis_kelamin: field is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apitest.New().
				Handler(s.e).
				Post("/predict").
				Header("Authorization", bearer).
				JSON(tt.body).
				Expect(t).
				Status(http.StatusBadRequest).
				Assert(jsonpath.Equal("$.code", "VALIDATION_ERROR")).
				Assert(jsonpath.Equal("$.detail", tt.detail)).
				End()
		})
	}

	apitest.New().Handler(s.e).Get("/history").Header("Authorization", bearer).
		Expect(t).Status(http.StatusOK).Body(`[]`).End()
}

func TestAPI_ProfileAndPassword(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", "pw1234")
	bearer := "Bearer " + s.login(t, "alice", "pw1234")

	apitest.New().
		Handler(s.e).
		Put("/me").
		Header("Authorization", bearer).
		JSON(`{"name":"Alice","email":"alice@example.com"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.name", "Alice")).
		Assert(jsonpath.Equal("$.email", "alice@example.com")).
		End()

	// the gate's cached user must not hide the update
	apitest.New().Handler(s.e).Get("/me").Header("Authorization", bearer).
		Expect(t).Status(http.StatusOK).Assert(jsonpath.Equal("$.name", "Alice")).End()

	apitest.New().Handler(s.e).Put("/me").Header("Authorization", bearer).JSON(`{"email":"nope"}`).
		Expect(t).Status(http.StatusBadRequest).Assert(jsonpath.Equal("$.code", "VALIDATION_ERROR")).End()

	apitest.New().Handler(s.e).Post("/change-password").Header("Authorization", bearer).
		JSON(`{"currentPassword":"wrong1","newPassword":"newpw99"}`).
		Expect(t).Status(http.StatusBadRequest).Assert(jsonpath.Equal("$.code", "CURRENT_PASSWORD_WRONG")).End()
	apitest.New().Handler(s.e).Post("/change-password").Header("Authorization", bearer).
		JSON(`{"currentPassword":"pw1234","newPassword":"x"}`).
		Expect(t).Status(http.StatusBadRequest).Assert(jsonpath.Equal("$.code", "WEAK_PASSWORD")).End()
	apitest.New().Handler(s.e).Post("/change-password").Header("Authorization", bearer).
		JSON(`{"currentPassword":"pw1234","newPassword":"newpw99"}`).
		Expect(t).Status(http.StatusOK).Assert(jsonpath.Equal("$.message", "password updated")).End()

	apitest.New().Handler(s.e).Post("/login").JSON(`{"username":"alice","password":"pw1234"}`).
		Expect(t).Status(http.StatusUnauthorized).End()
	s.login(t, "alice", "newpw99")
}

func TestAPI_Healthz(t *testing.T) {
	s := newTestServer(t)
	apitest.New().Handler(s.e).Get("/healthz").Expect(t).Status(http.StatusOK).Body("ok").End()
}

func TestAPI_SwaggerDocument(t *testing.T) {
	s := newTestServer(t)
	apitest.New().
		Handler(s.e).
		Get("/swagger/doc.json").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.info.title", "SADAR API")).
		Assert(jsonpath.Present("$.paths['/login']")).
		Assert(jsonpath.Equal("$.definitions['handler.LoginRequest'].required[0]", "username")).
		End()
}

func TestAPI_CORS(t *testing.T) {
	s := newTestServer(t)
	apitest.New().
		Handler(s.e).
		Method(http.MethodOptions).
		URL("/login").
		Header("Origin", "https://sadar-backend.vercel.app").
		Header("Access-Control-Request-Method", http.MethodPost).
		Expect(t).
		Status(http.StatusNoContent).
		Header("Access-Control-Allow-Origin", "https://sadar-backend.vercel.app").
		HeaderNotPresent("Access-Control-Allow-Credentials").
		End()
}

// failingResolver simulates the credential store being unreachable.
type failingResolver struct{}

func (failingResolver) FindByUsername(context.Context, string) (*model.User, error) {
	return nil, errors.New("connection refused")
}

func TestAuthMiddleware_LookupFailureIsInternal(t *testing.T) {
	tokens := auth.NewTokenManager(testSecret, time.Hour)
	token, err := tokens.Issue("alice", time.Now())
	require.NoError(t, err)

	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		router.AuthMiddleware(auth.NewGate(tokens, failingResolver{}, nil)))

	apitest.New().
		Handler(e).
		Get("/x").
		Header("Authorization", "Bearer "+token).
		Expect(t).
		Status(http.StatusInternalServerError).
		Assert(jsonpath.Equal("$.code", "INTERNAL_ERROR")).
		End()
}
