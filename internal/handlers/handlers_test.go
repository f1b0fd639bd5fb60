package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/harentsoaR/onlyfix-api/internal/blob"
	"github.com/harentsoaR/onlyfix-api/internal/directory"
	"github.com/harentsoaR/onlyfix-api/internal/ledger"
	"github.com/harentsoaR/onlyfix-api/internal/metrics"
	"github.com/harentsoaR/onlyfix-api/internal/models"
	"github.com/harentsoaR/onlyfix-api/internal/store/memstore"
	"github.com/harentsoaR/onlyfix-api/internal/utils"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{1}, 64)...)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	t       *testing.T
	router  *gin.Engine
	handler *Handler
	blobs   *blob.MemoryStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := zap.NewNop()

	dir := directory.New(memstore.NewUserStore(), bcrypt.MinCost, log)
	blobs := blob.NewMemoryStore()
	led := ledger.New(memstore.NewCheckupStore(), dir, blobs, nil, log)
	tokens := utils.NewTokenService("test-secret", time.Hour, "onlyfix")

	h := NewHandler(dir, led, tokens, metrics.NewCollector("onlyfix"), log)
	h.now = func() time.Time { return time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC) }

	r := gin.New()
	h.RegisterRoutes(r, RouteOptions{SeedEndpoint: true})
	return &testAPI{t: t, router: r, handler: h, blobs: blobs}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			a.t.Fatal(err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) complete(id, token, notes string, images map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("notes", notes)
	i := 0
	for name, desc := range images {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename="%s"`, name))
		hdr.Set("Content-Type", "image/png")
		part, _ := mw.CreatePart(hdr)
		_, _ = part.Write(pngBytes)
		_ = mw.WriteField(fmt.Sprintf("descriptions[%d]", i), desc)
		i++
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/checkups/"+id+"/complete", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

type userOut struct {
	ID string `json:"id"`
}

func (a *testAPI) register(body map[string]any) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/auth/register", "", body)
	expectStatus(a.t, rec, http.StatusCreated)
	return decode[struct {
		User userOut `json:"user"`
	}](a.t, rec).User.ID
}

func (a *testAPI) login(email string) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": "secret1"})
	expectStatus(a.t, rec, http.StatusOK)
	return decode[struct {
		Token string `json:"token"`
	}](a.t, rec).Token
}

func patientBody(email string) map[string]any {
	return map[string]any{
		"name": "Ann Patient", "email": email, "password": "secret1", "role": "patient",
		"phone": "+1-555-0000", "age": 34, "address": "12 Elm St",
	}
}

func dentistBody(name, email string) map[string]any {
	return map[string]any{
		"name": name, "email": email, "password": "secret1", "role": "dentist", "phone": "+1-555-0100",
		"specialization": "General Dentistry", "experience": 8, "location": "New York, NY",
		"availability": "Mon-Fri 9AM-5PM", "licenseNumber": "DDS-" + email,
	}
}

type parties struct {
	patientToken, dentistToken, otherToken string
	dentistID                              string
}

func (a *testAPI) setup() parties {
	a.register(patientBody("ann@example.com"))
	dentistID := a.register(dentistBody("Sarah Johnson", "sarah@example.com"))
	a.register(dentistBody("Michael Chen", "michael@example.com"))
	return parties{
		patientToken: a.login("ann@example.com"),
		dentistToken: a.login("sarah@example.com"),
		otherToken:   a.login("michael@example.com"),
		dentistID:    dentistID,
	}
}

type checkupOut struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Notes  string `json:"notes"`
	Images []struct {
		URL         string `json:"url"`
		Description string `json:"description"`
	} `json:"images"`
	CompletedDate *time.Time `json:"completedDate"`
}

func (a *testAPI) createCheckup(p parties) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/checkups", p.patientToken, map[string]string{"dentistId": p.dentistID, "notes": "tooth pain"})
	expectStatus(a.t, rec, http.StatusCreated)
	return decode[struct {
		Checkup checkupOut `json:"checkup"`
	}](a.t, rec).Checkup.ID
}

func TestCheckupScenario(t *testing.T) {
	a := newTestAPI(t)
	p := a.setup()

	id := a.createCheckup(p)

	// patient cannot accept
	rec := a.do(http.MethodPatch, "/checkups/"+id+"/status", p.patientToken, map[string]string{"status": "in-progress"})
	expectStatus(t, rec, http.StatusForbidden)

	// a different dentist cannot accept
	rec = a.do(http.MethodPatch, "/checkups/"+id+"/status", p.otherToken, map[string]string{"status": "in-progress"})
	expectStatus(t, rec, http.StatusForbidden)

	rec = a.do(http.MethodPatch, "/checkups/"+id+"/status", p.dentistToken, map[string]string{"status": "in-progress"})
	expectStatus(t, rec, http.StatusOK)

	// report before completion
	rec = a.do(http.MethodGet, "/checkups/"+id+"/report", p.patientToken, nil)
	expectStatus(t, rec, http.StatusBadRequest)
	if !strings.Contains(rec.Body.String(), "Checkup not completed yet") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	rec = a.complete(id, p.otherToken, "not mine", nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = a.complete(id, p.dentistToken, "cavity filled", map[string]string{"xray.png": "before/after"})
	expectStatus(t, rec, http.StatusOK)
	done := decode[struct {
		Checkup checkupOut `json:"checkup"`
	}](t, rec).Checkup
	if done.Status != "completed" || done.CompletedDate == nil || len(done.Images) != 1 {
		t.Fatalf("unexpected completed checkup: %+v", done)
	}

	rec = a.do(http.MethodGet, done.Images[0].URL, p.patientToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" || !bytes.Equal(rec.Body.Bytes(), pngBytes) {
		t.Errorf("unexpected image response %q (%d bytes)", ct, rec.Body.Len())
	}

	for _, token := range []string{p.patientToken, p.dentistToken} {
		rec = a.do(http.MethodGet, "/checkups/"+id+"/report", token, nil)
		expectStatus(t, rec, http.StatusOK)
		if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
			t.Errorf("unexpected content type %q", ct)
		}
		want := fmt.Sprintf(`attachment; filename="checkup-report-%s.pdf"`, id)
		if cd := rec.Header().Get("Content-Disposition"); cd != want {
			t.Errorf("unexpected disposition %q", cd)
		}
		if !bytes.Contains(rec.Body.Bytes(), []byte("cavity filled")) {
			t.Error("report does not carry the assessment")
		}
	}

	rec = a.do(http.MethodGet, "/checkups/"+id+"/report", p.otherToken, nil)
	expectStatus(t, rec, http.StatusForbidden)
}

func TestRecompleteOverwrites(t *testing.T) {
	a := newTestAPI(t)
	p := a.setup()
	id := a.createCheckup(p)

	expectStatus(t, a.do(http.MethodPatch, "/checkups/"+id+"/status", p.dentistToken, map[string]string{"status": "in-progress"}), http.StatusOK)
	expectStatus(t, a.complete(id, p.dentistToken, "first", map[string]string{"a.png": "a", "b.png": "b"}), http.StatusOK)

	rec := a.complete(id, p.dentistToken, "second", map[string]string{"c.png": "c"})
	expectStatus(t, rec, http.StatusOK)

	rec = a.do(http.MethodGet, "/checkups/"+id, p.patientToken, nil)
	expectStatus(t, rec, http.StatusOK)
	got := decode[struct {
		Checkup checkupOut `json:"checkup"`
	}](t, rec).Checkup
	if got.Notes != "second" || len(got.Images) != 1 || got.Images[0].Description != "c" {
		t.Errorf("expected overwritten checkup, got %+v", got)
	}
	if a.blobs.Len() != 1 {
		t.Errorf("expected replaced images to be removed, %d blobs stored", a.blobs.Len())
	}
}

func TestCompleteRejectsNonImages(t *testing.T) {
	a := newTestAPI(t)
	p := a.setup()
	id := a.createCheckup(p)
	expectStatus(t, a.do(http.MethodPatch, "/checkups/"+id+"/status", p.dentistToken, map[string]string{"status": "in-progress"}), http.StatusOK)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("notes", "n")
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="images"; filename="notes.txt"`)
	hdr.Set("Content-Type", "text/plain")
	part, _ := mw.CreatePart(hdr)
	_, _ = part.Write([]byte("plain text"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/checkups/"+id+"/complete", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.dentistToken)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	expectStatus(t, rec, http.StatusUnsupportedMediaType)
}

func TestStatusErrors(t *testing.T) {
	a := newTestAPI(t)
	p := a.setup()
	id := a.createCheckup(p)

	tests := []struct {
		name   string
		token  string
		path   string
		status string
		want   int
	}{
		{"unknown status", p.dentistToken, "/checkups/" + id + "/status", "cancelled", http.StatusBadRequest},
		{"completion via status", p.dentistToken, "/checkups/" + id + "/status", "completed", http.StatusBadRequest},
		{"unknown checkup", p.dentistToken, "/checkups/64b000000000000000000000/status", "in-progress", http.StatusNotFound},
		{"malformed id", p.dentistToken, "/checkups/not-an-id/status", "in-progress", http.StatusNotFound},
		{"patient on unknown checkup", p.patientToken, "/checkups/64b000000000000000000000/status", "in-progress", http.StatusNotFound},
		{"patient on own checkup", p.patientToken, "/checkups/" + id + "/status", "in-progress", http.StatusForbidden},
		{"other dentist", p.otherToken, "/checkups/" + id + "/status", "in-progress", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(http.MethodPatch, tt.path, tt.token, map[string]string{"status": tt.status})
			expectStatus(t, rec, tt.want)
		})
	}
}

func TestGetCheckupAccess(t *testing.T) {
	a := newTestAPI(t)
	p := a.setup()
	id := a.createCheckup(p)

	expectStatus(t, a.do(http.MethodGet, "/checkups/"+id, "", nil), http.StatusUnauthorized)
	expectStatus(t, a.do(http.MethodGet, "/checkups/"+id, "not-a-token", nil), http.StatusUnauthorized)
	expectStatus(t, a.do(http.MethodGet, "/checkups/"+id, p.otherToken, nil), http.StatusForbidden)
	expectStatus(t, a.do(http.MethodGet, "/checkups/"+id, p.dentistToken, nil), http.StatusOK)
}

func TestCreateCheckupValidation(t *testing.T) {
	a := newTestAPI(t)
	p := a.setup()

	rec := a.do(http.MethodPost, "/checkups", p.patientToken, map[string]string{"dentistId": "64b000000000000000000000"})
	expectStatus(t, rec, http.StatusNotFound)

	rec = a.do(http.MethodPost, "/checkups", p.dentistToken, map[string]string{"dentistId": p.dentistID})
	expectStatus(t, rec, http.StatusForbidden)

	rec = a.do(http.MethodPost, "/checkups", p.patientToken, "{")
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestMyCheckups(t *testing.T) {
	a := newTestAPI(t)
	p := a.setup()
	a.createCheckup(p)
	a.createCheckup(p)

	type listOut struct {
		Checkups []struct {
			Patient *struct {
				Name string `json:"name"`
				Age  int    `json:"age"`
			} `json:"patient"`
			Dentist *struct {
				Name string `json:"name"`
			} `json:"dentist"`
		} `json:"checkups"`
		Counts map[string]int `json:"counts"`
	}

	rec := a.do(http.MethodGet, "/checkups/mine", p.patientToken, nil)
	expectStatus(t, rec, http.StatusOK)
	mine := decode[listOut](t, rec)
	if len(mine.Checkups) != 2 || mine.Counts["pending"] != 2 || mine.Counts["in-progress"] != 0 {
		t.Errorf("unexpected patient list: %+v", mine)
	}
	if mine.Checkups[0].Dentist == nil || mine.Checkups[0].Dentist.Name != "Sarah Johnson" {
		t.Error("patient list should carry the dentist")
	}

	rec = a.do(http.MethodGet, "/checkups/mine", p.dentistToken, nil)
	expectStatus(t, rec, http.StatusOK)
	theirs := decode[listOut](t, rec)
	if len(theirs.Checkups) != 2 || theirs.Checkups[0].Patient == nil || theirs.Checkups[0].Patient.Age != 34 {
		t.Errorf("unexpected dentist list: %+v", theirs)
	}

	rec = a.do(http.MethodGet, "/checkups/mine", p.otherToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[listOut](t, rec); len(got.Checkups) != 0 {
		t.Error("unrelated dentist should see an empty list")
	}
}

func TestStreamSendsInitialSnapshot(t *testing.T) {
	a := newTestAPI(t)
	p := a.setup()
	a.createCheckup(p)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/checkups/mine/stream?interval=1s", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+p.patientToken)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "event:checkups") || !strings.Contains(body, `"pending":1`) {
		t.Errorf("expected an initial snapshot event, got %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("unexpected content type %q", ct)
	}

	rec = a.do(http.MethodGet, "/checkups/mine/stream?interval=10ms", p.patientToken, nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestRegistration(t *testing.T) {
	a := newTestAPI(t)

	a.register(patientBody("ann@example.com"))

	rec := a.do(http.MethodPost, "/auth/register", "", patientBody("ANN@example.com"))
	expectStatus(t, rec, http.StatusBadRequest)
	if !strings.Contains(rec.Body.String(), "User already exists with this email") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	withExtra := patientBody("bob@example.com")
	withExtra["isAdmin"] = true
	expectStatus(t, a.do(http.MethodPost, "/auth/register", "", withExtra), http.StatusBadRequest)

	crossRole := patientBody("carl@example.com")
	crossRole["specialization"] = "Orthodontics"
	expectStatus(t, a.do(http.MethodPost, "/auth/register", "", crossRole), http.StatusBadRequest)

	badRole := patientBody("dee@example.com")
	badRole["role"] = "admin"
	expectStatus(t, a.do(http.MethodPost, "/auth/register", "", badRole), http.StatusBadRequest)

	shortPassword := patientBody("eve@example.com")
	shortPassword["password"] = "123"
	rec = a.do(http.MethodPost, "/auth/register", "", shortPassword)
	expectStatus(t, rec, http.StatusBadRequest)
	if !strings.Contains(rec.Body.String(), "fields") {
		t.Errorf("expected field errors, got %s", rec.Body.String())
	}

	if strings.Contains(a.do(http.MethodPost, "/auth/register", "", patientBody("fay@example.com")).Body.String(), "password") {
		t.Error("registration response must not carry the password")
	}
}

func TestRegistration_ProfileFields(t *testing.T) {
	a := newTestAPI(t)

	tests := []struct {
		name   string
		body   map[string]any
		mutate func(map[string]any)
		field  string
	}{
		{"patient missing age", patientBody("p1@example.com"), func(b map[string]any) { delete(b, "age") }, "age is required"},
		{"patient negative age", patientBody("p2@example.com"), func(b map[string]any) { b["age"] = -7 }, "age must be at least 1"},
		{"patient age too high", patientBody("p3@example.com"), func(b map[string]any) { b["age"] = 200 }, "age must be at most 150"},
		{"patient missing address", patientBody("p4@example.com"), func(b map[string]any) { delete(b, "address") }, "address is required"},
		{"patient empty address", patientBody("p5@example.com"), func(b map[string]any) { b["address"] = "" }, "address is required"},
		{"patient bad email", patientBody("p6@example.com"), func(b map[string]any) { b["email"] = "p6@" }, "email is invalid"},
		{"dentist missing specialization", dentistBody("Dr A", "d1@example.com"), func(b map[string]any) { delete(b, "specialization") }, "specialization is required"},
		{"dentist missing experience", dentistBody("Dr B", "d2@example.com"), func(b map[string]any) { delete(b, "experience") }, "experience is required"},
		{"dentist negative experience", dentistBody("Dr C", "d3@example.com"), func(b map[string]any) { b["experience"] = -3 }, "experience must be at least 0"},
		{"dentist missing location", dentistBody("Dr D", "d4@example.com"), func(b map[string]any) { delete(b, "location") }, "location is required"},
		{"dentist missing availability", dentistBody("Dr E", "d5@example.com"), func(b map[string]any) { delete(b, "availability") }, "availability is required"},
		{"dentist missing license", dentistBody("Dr F", "d6@example.com"), func(b map[string]any) { delete(b, "licenseNumber") }, "licenseNumber is required"},
		{"dentist rating out of range", dentistBody("Dr G", "d7@example.com"), func(b map[string]any) { b["rating"] = 7 }, "rating must be at most 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mutate(tt.body)
			rec := a.do(http.MethodPost, "/auth/register", "", tt.body)
			expectStatus(t, rec, http.StatusBadRequest)
			if !strings.Contains(rec.Body.String(), tt.field) {
				t.Errorf("expected %q in %s", tt.field, rec.Body.String())
			}
		})
	}
}

func TestRegistration_DentistRating(t *testing.T) {
	a := newTestAPI(t)

	type dentistOut struct {
		User struct {
			Dentist struct {
				Rating     float64 `json:"rating"`
				Experience int     `json:"experience"`
			} `json:"dentist"`
		} `json:"user"`
	}

	rec := a.do(http.MethodPost, "/auth/register", "", dentistBody("Dr Default", "default@example.com"))
	expectStatus(t, rec, http.StatusCreated)
	if got := decode[dentistOut](t, rec).User.Dentist.Rating; got != models.DefaultDentistRating {
		t.Errorf("expected default rating, got %v", got)
	}

	zero := dentistBody("Dr Zero", "zero@example.com")
	zero["rating"] = 0
	zero["experience"] = 0
	rec = a.do(http.MethodPost, "/auth/register", "", zero)
	expectStatus(t, rec, http.StatusCreated)
	out := decode[dentistOut](t, rec)
	if out.User.Dentist.Rating != 0 || out.User.Dentist.Experience != 0 {
		t.Errorf("explicit zeros must be kept, got %+v", out.User.Dentist)
	}
}

func TestLoginAndMe(t *testing.T) {
	a := newTestAPI(t)
	a.register(patientBody("ann@example.com"))

	rec := a.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "ann@example.com", "password": "wrong-pass"})
	expectStatus(t, rec, http.StatusUnauthorized)

	token := a.login("ann@example.com")
	rec = a.do(http.MethodGet, "/me", token, nil)
	expectStatus(t, rec, http.StatusOK)
	me := decode[struct {
		User struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}](t, rec)
	if me.User.Email != "ann@example.com" || me.User.Role != "patient" {
		t.Errorf("unexpected user %+v", me.User)
	}
}

func TestDentistsAndSeed(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, "/dentists/seed", "", nil)
	expectStatus(t, rec, http.StatusCreated)
	rec = a.do(http.MethodPost, "/dentists/seed", "", nil)
	expectStatus(t, rec, http.StatusOK)

	rec = a.do(http.MethodGet, "/dentists", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("dentist listing must not carry passwords")
	}
	list := decode[struct {
		Dentists []map[string]any `json:"dentists"`
	}](t, rec)
	if len(list.Dentists) != 3 {
		t.Errorf("expected 3 sample dentists, got %d", len(list.Dentists))
	}
}

func TestHealthz(t *testing.T) {
	a := newTestAPI(t)
	expectStatus(t, a.do(http.MethodGet, "/healthz", "", nil), http.StatusOK)

	a.handler.Ping = func(context.Context) error { return fmt.Errorf("mongo down") }
	expectStatus(t, a.do(http.MethodGet, "/healthz", "", nil), http.StatusServiceUnavailable)
}
