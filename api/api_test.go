package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pattibytes-express/config"
	"pattibytes-express/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func testServer() *Server {
	cfg := &config.Config{
		HTTP:             config.HTTPConfig{JWTSecret: testSecret},
		Location:         time.UTC,
		UsernameCacheTTL: time.Minute,
	}
	return NewServer(cfg, nil)
}

func token(t *testing.T, role string, id int64) string {
	t.Helper()
	tok, err := IssueToken(testSecret, services.Actor{Role: role, ID: id}, time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, tok, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: bad body %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func TestParseToken(t *testing.T) {
	tok := token(t, services.RoleMerchant, 12)
	actor, err := parseToken(testSecret, tok)
	if err != nil || actor != (services.Actor{Role: services.RoleMerchant, ID: 12}) {
		t.Fatalf("parseToken = (%+v, %v)", actor, err)
	}
	if _, err := parseToken("other-secret", tok); err == nil {
		t.Error("wrong secret accepted")
	}

	expired, _ := IssueToken(testSecret, services.Actor{Role: services.RoleCustomer, ID: 1}, time.Minute, time.Now().Add(-time.Hour))
	if _, err := parseToken(testSecret, expired); err == nil {
		t.Error("expired token accepted")
	}

	badRole, _ := IssueToken(testSecret, services.Actor{Role: "root", ID: 1}, time.Hour, time.Now())
	if _, err := parseToken(testSecret, badRole); err == nil {
		t.Error("unknown role accepted")
	}

	noSubject, _ := IssueToken(testSecret, services.Actor{Role: services.RoleCustomer, ID: 0}, time.Hour, time.Now())
	if _, err := parseToken(testSecret, noSubject); err == nil {
		t.Error("zero subject accepted")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: services.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := parseToken(testSecret, unsigned); err == nil {
		t.Error("alg=none accepted")
	}
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/any", AuthMiddleware(testSecret), func(c *gin.Context) {
		a, _ := currentActor(c)
		ok(c, a)
	})
	r.GET("/customers-only", AuthMiddleware(testSecret, services.RoleCustomer), func(c *gin.Context) { ok(c, nil) })

	tests := []struct {
		name string
		path string
		tok  string
		want int
	}{
		{"missing token", "/any", "", http.StatusUnauthorized},
		{"garbage token", "/any", "not-a-jwt", http.StatusUnauthorized},
		{"valid token", "/any", token(t, services.RoleDriver, 3), http.StatusOK},
		{"wrong role", "/customers-only", token(t, services.RoleMerchant, 3), http.StatusForbidden},
		{"right role", "/customers-only", token(t, services.RoleCustomer, 3), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, r, http.MethodGet, tt.path, tt.tok, "")
			if code != tt.want {
				t.Errorf("status = %d, want %d (%s)", code, tt.want, env.Error)
			}
			if env.OK != (tt.want == http.StatusOK) {
				t.Errorf("ok = %v", env.OK)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	r := gin.New()
	r.GET("/", OptionalAuth(testSecret), func(c *gin.Context) {
		_, found := currentActor(c)
		ok(c, found)
	})
	for _, tt := range []struct {
		tok  string
		want string
	}{
		{"", "false"},
		{"broken", "false"},
		{token(t, services.RoleCustomer, 8), "true"},
	} {
		code, env := do(t, r, http.MethodGet, "/", tt.tok, "")
		if code != http.StatusOK || string(env.Data) != tt.want {
			t.Errorf("token %q: status=%d data=%s", tt.tok, code, env.Data)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrNotPermitted, http.StatusForbidden},
		{services.ErrReasonRequired, http.StatusBadRequest},
		{fmt.Errorf("quote: %w", services.ErrInvalidCoordinates), http.StatusBadRequest},
		{services.ErrOrderNotFound, http.StatusNotFound},
		{services.ErrProfileNotFound, http.StatusNotFound},
		{services.ErrTerminalStatus, http.StatusConflict},
		{services.ErrDriverAlreadyAssigned, http.StatusConflict},
		{services.ErrUsernameTaken, http.StatusConflict},
		{services.ErrRestaurantClosed, http.StatusUnprocessableEntity},
		{fmt.Errorf("item 9: %w", services.ErrMenuItemUnavailable), http.StatusUnprocessableEntity},
		{fmt.Errorf("dial tcp: refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFailErrHidesInternalErrors(t *testing.T) {
	r := gin.New()
	r.GET("/", func(c *gin.Context) { failErr(c, fmt.Errorf("pq: password authentication failed")) })
	code, env := do(t, r, http.MethodGet, "/", "", "")
	if code != http.StatusInternalServerError || env.Error != "internal error" {
		t.Errorf("status=%d error=%q", code, env.Error)
	}
}

// These requests are rejected before any database access.
func TestRouterRejectsBadRequests(t *testing.T) {
	h := testServer().Router()
	customer := token(t, services.RoleCustomer, 5)
	merchant := token(t, services.RoleMerchant, 2)
	driver := token(t, services.RoleDriver, 9)

	tests := []struct {
		name   string
		method string
		path   string
		tok    string
		body   string
		want   int
	}{
		{"orders need auth", http.MethodGet, "/orders", "", "", http.StatusUnauthorized},
		{"only customers order", http.MethodPost, "/orders", merchant, `{}`, http.StatusForbidden},
		{"order body invalid", http.MethodPost, "/orders", customer, `{"merchant_id":"x"}`, http.StatusBadRequest},
		{"drivers cannot list orders", http.MethodGet, "/orders", driver, "", http.StatusForbidden},
		{"bad order id", http.MethodGet, "/orders/abc", customer, "", http.StatusBadRequest},
		{"status body missing", http.MethodPost, "/orders/4/status", merchant, `{}`, http.StatusBadRequest},
		{"customers cannot assign", http.MethodPost, "/orders/4/driver", customer, `{"driver_id":9}`, http.StatusForbidden},
		{"merchant must name driver", http.MethodPost, "/orders/4/driver", merchant, `{}`, http.StatusBadRequest},
		{"quote needs coordinates", http.MethodPost, "/quotes/delivery-fee", "", `{"merchant_id":1}`, http.StatusBadRequest},
		{"quote rejects null island", http.MethodPost, "/quotes/delivery-fee", "", `{"merchant_id":1,"lat":0,"lon":0}`, http.StatusBadRequest},
		{"bad merchant id", http.MethodGet, "/merchants/0/status", "", "", http.StatusBadRequest},
		{"drivers cannot read trust", http.MethodGet, "/customers/5/trust", driver, "", http.StatusForbidden},
		{"customers read only own trust", http.MethodGet, "/customers/6/trust", customer, "", http.StatusForbidden},
		{"username too short", http.MethodGet, "/usernames/available?name=ab", "", "", http.StatusBadRequest},
		{"claim needs customer", http.MethodPost, "/usernames/claim", merchant, `{"username":"patti"}`, http.StatusForbidden},
		{"claim invalid name", http.MethodPost, "/usernames/claim", customer, `{"username":"no spaces"}`, http.StatusBadRequest},
		{"self follow", http.MethodPost, "/users/5/follow", customer, "", http.StatusBadRequest},
		{"follow needs auth", http.MethodDelete, "/users/7/follow", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, h, tt.method, tt.path, tt.tok, tt.body)
			if code != tt.want {
				t.Errorf("status = %d, want %d (%s)", code, tt.want, env.Error)
			}
			if env.OK {
				t.Error("ok = true on rejected request")
			}
		})
	}
}
