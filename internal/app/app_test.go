package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/citizen-registry/internal/config"
	"github.com/jwalitptl/citizen-registry/pkg/metrics"
)

const (
	operatorEmail    = "ops@registry.test"
	operatorPassword = "operator-pass"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Field   string          `json:"field"`
	Data    json.RawMessage `json:"data"`
}

type APISuite struct {
	suite.Suite
	engine     *gin.Engine
	adminToken string
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func testConfig(operatorHash string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode, MaxBodyBytes: 1 << 20},
		Store:  config.StoreConfig{Driver: "memory"},
		JWT: config.JWTConfig{
			Secret:        "0123456789abcdef0123456789abcdef",
			Issuer:        "registry-test",
			Expiry:        time.Hour,
			RefreshExpiry: 24 * time.Hour,
		},
		RateLimit: config.RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
			LoginPerMinute:    1000,
			ClientTTL:         time.Minute,
		},
		Security: config.SecurityConfig{
			EncryptionKey: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
			BcryptCost:    bcrypt.MinCost,
		},
		Admin: config.AdminConfig{Email: operatorEmail, PasswordHash: operatorHash},
	}
}

func (s *APISuite) SetupTest() {
	hash, err := bcrypt.GenerateFromPassword([]byte(operatorPassword), bcrypt.MinCost)
	s.Require().NoError(err)

	registry := prometheus.NewRegistry()
	engine, err := NewAPI(Deps{
		Config:   testConfig(string(hash)),
		Stores:   MemoryStores(),
		Logger:   zerolog.Nop(),
		Registry: registry,
		Metrics:  metrics.NewMetrics(registry, "registry"),
	})
	s.Require().NoError(err)
	s.engine = engine

	w, env := s.do(http.MethodPost, "/api/v1/login/staff", "", map[string]interface{}{
		"email": operatorEmail, "password": operatorPassword,
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &login))
	s.adminToken = login.Token
}

func (s *APISuite) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (s *APISuite) id(env envelope) string {
	var v struct {
		ID string `json:"id"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &v))
	s.Require().NotEmpty(v.ID)
	return v.ID
}

func citizenPayload(email string) map[string]interface{} {
	return map[string]interface{}{
		"firstName":   "Jean",
		"lastName":    "Dupont",
		"email":       email,
		"birthDate":   "1985-03-15",
		"phoneNumber": "+33612345678",
		"address":     "1 Rue X",
		"password":    "Abcdef12",
		"emergencyProfile": map[string]interface{}{
			"bloodType": "A+",
		},
	}
}

type registration struct {
	Citizen struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"citizen"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (s *APISuite) register(email string) registration {
	w, env := s.do(http.MethodPost, "/api/v1/citizens", "", citizenPayload(email))
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var reg registration
	s.Require().NoError(json.Unmarshal(env.Data, &reg))
	return reg
}

func (s *APISuite) createInstitution() string {
	w, env := s.do(http.MethodPost, "/api/v1/institutions", s.adminToken, map[string]interface{}{
		"name":    "General Hospital",
		"type":    "hospital",
		"address": "10 Avenue de la Gare",
		"contact": map[string]interface{}{"phone": "+33100000000", "email": "contact@hospital.fr"},
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	return s.id(env)
}

func staffPayload(institutionID string) map[string]interface{} {
	return map[string]interface{}{
		"firstName":   "Alice",
		"lastName":    "Martin",
		"email":       "alice@hospital.fr",
		"phoneNumber": "+33600000001",
		"institution": institutionID,
		"role":        "receptionist",
		"department":  "Front desk",
		"schedule": map[string]interface{}{
			"start": "08:00",
			"end":   "17:00",
			"days":  []string{"monday"},
		},
	}
}

func (s *APISuite) createStaff(institutionID string) string {
	w, env := s.do(http.MethodPost, "/api/v1/staff", s.adminToken, staffPayload(institutionID))
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	return s.id(env)
}

func appointmentPayload(citizenID, institutionID, staffID string, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"citizen":       citizenID,
		"institution":   institutionID,
		"staff":         staffID,
		"type":          "consultation",
		"scheduledTime": at.UTC().Format(time.RFC3339),
		"location":      map[string]interface{}{"room": "12", "floor": "1"},
	}
}

func (s *APISuite) TestRegisterThenLogin() {
	reg := s.register("jean@x.fr")
	s.NotEmpty(reg.Token)
	s.NotEmpty(reg.RefreshToken)

	w, env := s.do(http.MethodPost, "/api/v1/login/citizens", "", map[string]interface{}{
		"email": "jean@x.fr", "password": "Abcdef12",
	})
	s.Require().Equal(http.StatusOK, w.Code)
	var login registration
	s.Require().NoError(json.Unmarshal(env.Data, &login))
	s.NotEmpty(login.Token)
	s.Equal(reg.Citizen.ID, login.Citizen.ID)

	w, env = s.do(http.MethodGet, "/api/v1/citizens/"+reg.Citizen.ID, login.Token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.NotContains(string(env.Data), "password")
}

func (s *APISuite) TestDuplicateEmail() {
	s.register("jean@x.fr")

	w, env := s.do(http.MethodPost, "/api/v1/register/citizens", "", citizenPayload("jean@x.fr"))
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("email", env.Field)
}

func (s *APISuite) TestLoginFailuresLookAlike() {
	s.register("jean@x.fr")

	wrong, wrongEnv := s.do(http.MethodPost, "/api/v1/login/citizens", "", map[string]interface{}{
		"email": "jean@x.fr", "password": "wrong-password",
	})
	unknown, unknownEnv := s.do(http.MethodPost, "/api/v1/login/citizens", "", map[string]interface{}{
		"email": "nobody@x.fr", "password": "Abcdef12",
	})

	s.Equal(http.StatusUnauthorized, wrong.Code)
	s.Equal(wrong.Code, unknown.Code)
	s.Equal(wrongEnv, unknownEnv)
	s.Equal("invalid credentials", wrongEnv.Message)
}

func (s *APISuite) TestAppointmentInThePast() {
	reg := s.register("jean@x.fr")
	institutionID := s.createInstitution()
	staffID := s.createStaff(institutionID)

	w, env := s.do(http.MethodPost, "/api/v1/appointments", s.adminToken,
		appointmentPayload(reg.Citizen.ID, institutionID, staffID, time.Now().Add(-24*time.Hour)))
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("scheduledTime", env.Field)
}

func (s *APISuite) TestAppointmentLifecycle() {
	reg := s.register("jean@x.fr")
	institutionID := s.createInstitution()
	staffID := s.createStaff(institutionID)

	w, env := s.do(http.MethodPost, "/api/v1/appointments", reg.Token,
		appointmentPayload(reg.Citizen.ID, institutionID, staffID, time.Now().Add(48*time.Hour)))
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	apptID := s.id(env)

	w, _ = s.do(http.MethodPost, "/api/v1/appointments/"+apptID+"/confirm", reg.Token, nil)
	s.Equal(http.StatusForbidden, w.Code, "citizens cannot confirm")

	w, _ = s.do(http.MethodPost, "/api/v1/appointments/"+apptID+"/confirm", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/appointments/"+apptID+"/cancel", reg.Token, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	w, env = s.do(http.MethodPost, "/api/v1/appointments/"+apptID+"/complete", s.adminToken, nil)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("status", env.Field)
}

func (s *APISuite) TestDemandeAdminRequiresContact() {
	reg := s.register("jean@x.fr")
	institutionID := s.createInstitution()

	w, env := s.do(http.MethodPost, "/api/v1/demandes", s.adminToken, map[string]interface{}{
		"citizenId":     reg.Citizen.ID,
		"institutionId": institutionID,
		"serviceId":     institutionID,
		"adminId":       institutionID,
		"type":          "passport",
		"title":         "Passport renewal",
	})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("adminName", env.Field)
}

func (s *APISuite) TestStaffScheduleOrder() {
	institutionID := s.createInstitution()

	doc := staffPayload(institutionID)
	doc["schedule"] = map[string]interface{}{"start": "17:00", "end": "08:00", "days": []string{"monday"}}

	w, env := s.do(http.MethodPost, "/api/v1/staff", s.adminToken, doc)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("schedule", env.Field)
}

func (s *APISuite) TestUpdateWithForbiddenFieldChangesNothing() {
	reg := s.register("jean@x.fr")

	w, env := s.do(http.MethodPut, "/api/v1/citizens/"+reg.Citizen.ID, reg.Token, map[string]interface{}{
		"firstName": "Paul",
		"password":  "Another123",
	})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("password", env.Field)

	w, env = s.do(http.MethodGet, "/api/v1/citizens/"+reg.Citizen.ID, reg.Token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var citizen struct {
		FirstName string `json:"firstName"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &citizen))
	s.Equal("Jean", citizen.FirstName)
}

func (s *APISuite) TestStaffDeleteBlockedByAppointments() {
	reg := s.register("jean@x.fr")
	institutionID := s.createInstitution()
	staffID := s.createStaff(institutionID)

	w, env := s.do(http.MethodPost, "/api/v1/appointments", s.adminToken,
		appointmentPayload(reg.Citizen.ID, institutionID, staffID, time.Now().Add(48*time.Hour)))
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	apptID := s.id(env)

	w, _ = s.do(http.MethodDelete, "/api/v1/staff/"+staffID, s.adminToken, nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodDelete, "/api/v1/appointments/"+apptID, s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	w, _ = s.do(http.MethodDelete, "/api/v1/staff/"+staffID, s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/staff/"+staffID, s.adminToken, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *APISuite) TestGateAndRoles() {
	reg := s.register("jean@x.fr")

	w, env := s.do(http.MethodGet, "/api/v1/institutions", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("missing authorization header", env.Message)

	w, _ = s.do(http.MethodGet, "/api/v1/institutions", reg.Token, nil)
	s.Equal(http.StatusForbidden, w.Code)

	w, env = s.do(http.MethodGet, "/api/v1/citizens/not-an-id", s.adminToken, nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("id", env.Field)
}

func (s *APISuite) TestRefreshRotation() {
	reg := s.register("jean@x.fr")

	w, env := s.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]interface{}{
		"refreshToken": reg.RefreshToken,
	})
	s.Require().Equal(http.StatusOK, w.Code)
	var pair struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &pair))
	s.NotEqual(reg.RefreshToken, pair.RefreshToken)

	w, _ = s.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]interface{}{
		"refreshToken": reg.RefreshToken,
	})
	s.Equal(http.StatusUnauthorized, w.Code, "a rotated token cannot be replayed")

	w, _ = s.do(http.MethodPost, "/api/v1/auth/logout", pair.Token, map[string]interface{}{
		"refreshToken": pair.RefreshToken,
	})
	s.Require().Equal(http.StatusOK, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]interface{}{
		"refreshToken": pair.RefreshToken,
	})
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *APISuite) refresh(refreshToken string) (*httptest.ResponseRecorder, string) {
	w, env := s.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]interface{}{
		"refreshToken": refreshToken,
	})
	var pair struct {
		Token string `json:"token"`
	}
	if w.Code == http.StatusOK {
		s.Require().NoError(json.Unmarshal(env.Data, &pair))
	}
	return w, pair.Token
}

func (s *APISuite) TestRefreshAfterAPIKeyDeactivated() {
	institutionID := s.createInstitution()

	w, env := s.do(http.MethodPost, "/api/v1/institutions/"+institutionID+"/api-keys", s.adminToken, map[string]interface{}{
		"permissions": []string{"read_citizen_data"},
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var issued struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &issued))

	w, env = s.do(http.MethodPost, "/api/v1/login/institutions", "", map[string]interface{}{"apiKey": issued.Key})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var login struct {
		RefreshToken string `json:"refreshToken"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &login))

	w, _ = s.do(http.MethodDelete, "/api/v1/institutions/"+institutionID+"/api-keys/"+issued.ID, s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, _ = s.refresh(login.RefreshToken)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *APISuite) TestRefreshPicksUpRevokedPermissions() {
	institutionID := s.createInstitution()
	payload := staffPayload(institutionID)
	payload["password"] = "Sup3rSecret"
	payload["permissions"] = map[string]interface{}{"readCitizenData": true}
	w, env := s.do(http.MethodPost, "/api/v1/staff", s.adminToken, payload)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	staffID := s.id(env)

	w, env = s.do(http.MethodPost, "/api/v1/login/staff", "", map[string]interface{}{
		"email": "alice@hospital.fr", "password": "Sup3rSecret",
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &login))

	w, _ = s.do(http.MethodGet, "/api/v1/citizens", login.Token, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	w, _ = s.do(http.MethodPut, "/api/v1/staff/"+staffID, s.adminToken, map[string]interface{}{
		"permissions": map[string]interface{}{"readCitizenData": false},
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, token := s.refresh(login.RefreshToken)
	s.Require().Equal(http.StatusOK, w.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/citizens", token, nil)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *APISuite) TestHealthAndMetrics() {
	w, _ := s.do(http.MethodGet, "/api/v1/health/live", "", nil)
	s.Equal(http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "registry_http_requests_total")
}
