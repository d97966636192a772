package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pankajredekar/catalog/internal/auth"
	"github.com/pankajredekar/catalog/internal/models"
	"github.com/pankajredekar/catalog/internal/store"
)

type fakeAuth struct{}

func (fakeAuth) AuthCodeURL(state string) string {
	return "https://provider.test/authorize?state=" + url.QueryEscape(state)
}

func (fakeAuth) Exchange(ctx context.Context, code string) (*auth.TokenResponse, error) {
	if code == "good-code" {
		return &auth.TokenResponse{AccessToken: "test-token"}, nil
	}
	return nil, errors.New("exchange rejected")
}

func setupTestServer(t *testing.T, authenticator Authenticator) (*Server, *store.Store, http.Handler) {
	st, err := store.Open("sqlite://:memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	srv, err := New(st, authenticator, "test-secret-key", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to build server: %v", err)
	}

	return srv, st, srv.Handler("/oauth2callback")
}

func seedCategory(t *testing.T, st *store.Store, name string) *models.Category {
	category := &models.Category{Name: name}
	if err := st.CreateCategory(category); err != nil {
		t.Fatalf("Failed to seed category %q: %v", name, err)
	}
	return category
}

func seedItem(t *testing.T, st *store.Store, title string, categoryID uint) *models.CategoryItem {
	item := &models.CategoryItem{Title: title, CategoryID: categoryID, Created: time.Now()}
	if err := st.CreateItem(item); err != nil {
		t.Fatalf("Failed to seed item %q: %v", title, err)
	}
	return item
}

// loginCookie issues a session cookie carrying an access token, simulating a
// completed provider login
func loginCookie(t *testing.T, srv *Server) *http.Cookie {
	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	session, _ := srv.sessions.Get(req, sessionName)
	session.Values[accessTokenKey] = "test-token"
	if err := session.Save(req, rec); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("No session cookie issued")
	}
	return cookies[0]
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

var csrfTokenPattern = regexp.MustCompile(`name="gorilla\.csrf\.Token" value="([^"]+)"`)

// formToken loads a form page and returns its csrf token together with the
// cookies needed to submit it
func formToken(t *testing.T, handler http.Handler, path string, login *http.Cookie) (string, []*http.Cookie) {
	req := httptest.NewRequest("GET", path, nil)
	if login != nil {
		req.AddCookie(login)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Failed to load form at %s: status %d", path, rec.Code)
	}

	match := csrfTokenPattern.FindStringSubmatch(rec.Body.String())
	if match == nil {
		t.Fatalf("No csrf token rendered in the form at %s", path)
	}

	cookies := rec.Result().Cookies()
	if login != nil {
		cookies = append(cookies, login)
	}
	return match[1], cookies
}

// submitForm posts a form the way a browser would: csrf token included and
// all cookies re-presented
func submitForm(handler http.Handler, path string, values url.Values, token string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	values.Set("gorilla.csrf.Token", token)
	req := postForm(path, values)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func location(t *testing.T, rec *httptest.ResponseRecorder) string {
	if rec.Code != http.StatusFound {
		t.Fatalf("Expected redirect, got status %d", rec.Code)
	}
	return rec.Header().Get("Location")
}

func TestUnknownCategoryRedirectsHome(t *testing.T) {
	_, _, handler := setupTestServer(t, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/catalog/Nope/Items", nil))

	if got := location(t, rec); got != "/" {
		t.Errorf("Expected redirect to '/', got %q", got)
	}
}

func TestKnownEmptyCategoryRenders(t *testing.T) {
	_, st, handler := setupTestServer(t, nil)
	seedCategory(t, st, "Books")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/catalog/Books/Items", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Empty category should render, got status %d", rec.Code)
	}
}

func TestUnknownItemRedirectsHome(t *testing.T) {
	_, st, handler := setupTestServer(t, nil)
	seedCategory(t, st, "Books")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/catalog/Books/Nope", nil))

	if got := location(t, rec); got != "/" {
		t.Errorf("Expected redirect to '/', got %q", got)
	}
}

func TestItemDetailRenders(t *testing.T) {
	_, st, handler := setupTestServer(t, nil)
	books := seedCategory(t, st, "Books")
	seedItem(t, st, "Dune", books.ID)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/catalog/Books/Dune", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Dune") {
		t.Error("Detail page should mention the item title")
	}
}

func TestCreateRequiresLogin(t *testing.T) {
	_, st, handler := setupTestServer(t, nil)
	seedCategory(t, st, "Books")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/catalog/item/create", nil))
	if got := location(t, rec); got != "/login" {
		t.Errorf("Expected redirect to '/login', got %q", got)
	}

	// A blind POST carries no csrf token, so it is refused before the
	// session gate is even consulted.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, postForm("/catalog/item/create", url.Values{
		"title": {"Dune"}, "description": {""}, "category": {"1"},
	}))
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for a POST without a csrf token, got %d", rec.Code)
	}

	if _, ok, _ := st.ItemByTitle("Dune"); ok {
		t.Error("Unauthenticated POST must not insert anything")
	}
}

func TestCreateItem(t *testing.T) {
	srv, st, handler := setupTestServer(t, nil)
	books := seedCategory(t, st, "Books")
	cookie := loginCookie(t, srv)

	token, cookies := formToken(t, handler, "/catalog/item/create", cookie)
	rec := submitForm(handler, "/catalog/item/create", url.Values{
		"title": {"Dune"}, "description": {"A classic"}, "category": {"1"},
	}, token, cookies)

	if got := location(t, rec); got != "/" {
		t.Fatalf("Expected redirect to '/', got %q", got)
	}
	item, ok, err := st.ItemByTitle("Dune")
	if err != nil || !ok {
		t.Fatalf("Created item missing, ok=%v err=%v", ok, err)
	}
	if item.CategoryID != books.ID {
		t.Errorf("Expected category %d, got %d", books.ID, item.CategoryID)
	}
	if item.Description == nil || *item.Description != "A classic" {
		t.Errorf("Unexpected description: %v", item.Description)
	}
}

func TestCreateValidationFailureRerenders(t *testing.T) {
	srv, st, handler := setupTestServer(t, nil)
	seedCategory(t, st, "Books")
	cookie := loginCookie(t, srv)

	token, cookies := formToken(t, handler, "/catalog/item/create", cookie)
	rec := submitForm(handler, "/catalog/item/create", url.Values{
		"title": {" Item"}, "description": {""}, "category": {"1"},
	}, token, cookies)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected form re-render, got status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Title must be alphanumeric") {
		t.Error("Expected the title error message in the re-rendered form")
	}
	if !strings.Contains(rec.Body.String(), " Item") {
		t.Error("Submitted input should be preserved in the form")
	}
	if _, ok, _ := st.ItemByTitle(" Item"); ok {
		t.Error("Invalid submission must not insert anything")
	}
}

func TestCreateDuplicateTitleReportedOnForm(t *testing.T) {
	srv, st, handler := setupTestServer(t, nil)
	books := seedCategory(t, st, "Books")
	seedItem(t, st, "Dune", books.ID)
	cookie := loginCookie(t, srv)

	token, cookies := formToken(t, handler, "/catalog/item/create", cookie)
	rec := submitForm(handler, "/catalog/item/create", url.Values{
		"title": {"Dune"}, "description": {""}, "category": {"1"},
	}, token, cookies)

	if rec.Code != http.StatusOK {
		t.Fatalf("Constraint breach should re-render the form, got status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Title is already taken") {
		t.Error("Expected the duplicate-title message on the form")
	}
}

func TestEditReassignsCategory(t *testing.T) {
	srv, st, handler := setupTestServer(t, nil)
	books := seedCategory(t, st, "Books")
	films := seedCategory(t, st, "Films")
	seedItem(t, st, "Dune", books.ID)
	cookie := loginCookie(t, srv)

	token, cookies := formToken(t, handler, "/catalog/Dune/edit", cookie)
	rec := submitForm(handler, "/catalog/Dune/edit", url.Values{
		"title": {"Dune"}, "description": {""}, "category": {"2"},
	}, token, cookies)

	if got := location(t, rec); got != "/catalog/Films/Items" {
		t.Fatalf("Expected redirect to the new category listing, got %q", got)
	}

	item, ok, err := st.ItemByTitle("Dune")
	if err != nil || !ok {
		t.Fatalf("Item missing after edit, ok=%v err=%v", ok, err)
	}
	if item.CategoryID != films.ID {
		t.Errorf("Expected category %d after reassignment, got %d", films.ID, item.CategoryID)
	}

	old, err := st.ItemsByCategory(books.ID)
	if err != nil {
		t.Fatalf("ItemsByCategory failed: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("Old category should no longer list the item, got %d items", len(old))
	}
}

func TestEditMissingItemRedirectsHome(t *testing.T) {
	srv, _, handler := setupTestServer(t, nil)
	cookie := loginCookie(t, srv)

	req := httptest.NewRequest("GET", "/catalog/Nope/edit", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := location(t, rec); got != "/" {
		t.Errorf("Expected redirect to '/', got %q", got)
	}
}

func TestDeleteItem(t *testing.T) {
	srv, st, handler := setupTestServer(t, nil)
	books := seedCategory(t, st, "Books")
	seedItem(t, st, "Dune", books.ID)
	cookie := loginCookie(t, srv)

	token, cookies := formToken(t, handler, "/catalog/Dune/delete", cookie)
	rec := submitForm(handler, "/catalog/Dune/delete", url.Values{}, token, cookies)

	if got := location(t, rec); got != "/" {
		t.Fatalf("Expected redirect to '/', got %q", got)
	}
	if _, ok, _ := st.ItemByTitle("Dune"); ok {
		t.Error("Item should be gone after deletion")
	}
}

func TestCatalogJSON(t *testing.T) {
	_, st, handler := setupTestServer(t, nil)
	books := seedCategory(t, st, "Books")
	seedItem(t, st, "Dune", books.ID)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/catalog.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	body := rec.Body.String()
	for _, fragment := range []string{`"Categories":[`, `"id":1`, `"name":"Books"`, `"title":"Dune"`, `"description":null`, `"created":`} {
		if !strings.Contains(body, fragment) {
			t.Errorf("Catalog document missing %s in: %s", fragment, body)
		}
	}
}

func TestHomeListsCategoriesAndItems(t *testing.T) {
	_, st, handler := setupTestServer(t, nil)
	books := seedCategory(t, st, "Books")
	seedItem(t, st, "Dune", books.ID)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Books") || !strings.Contains(body, "Dune") {
		t.Error("Home page should list categories and items")
	}
}

func TestLogoutWhenLoggedOut(t *testing.T) {
	_, _, handler := setupTestServer(t, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/logout", nil))

	if got := location(t, rec); got != "/" {
		t.Errorf("Logout while unauthenticated should redirect home, got %q", got)
	}
}

func TestLoginRedirectsToProvider(t *testing.T) {
	_, _, handler := setupTestServer(t, fakeAuth{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/login", nil))

	got := location(t, rec)
	if !strings.HasPrefix(got, "https://provider.test/authorize?state=") {
		t.Errorf("Expected provider redirect, got %q", got)
	}
}

func TestLoginWhenAuthenticatedRedirectsHome(t *testing.T) {
	srv, _, handler := setupTestServer(t, fakeAuth{})
	cookie := loginCookie(t, srv)

	req := httptest.NewRequest("GET", "/login", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := location(t, rec); got != "/" {
		t.Errorf("Expected redirect to '/', got %q", got)
	}
}

func TestCallbackStoresToken(t *testing.T) {
	srv, _, handler := setupTestServer(t, fakeAuth{})

	// Start the login flow to get the state nonce into the session.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/login", nil))
	redirect, err := url.Parse(location(t, rec))
	if err != nil {
		t.Fatalf("Failed to parse provider redirect: %v", err)
	}
	state := redirect.Query().Get("state")
	cookies := rec.Result().Cookies()
	if state == "" || len(cookies) == 0 {
		t.Fatal("Login should issue a state nonce and a session cookie")
	}

	req := httptest.NewRequest("GET", "/oauth2callback?code=good-code&state="+url.QueryEscape(state), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := location(t, rec); got != "/" {
		t.Fatalf("Expected redirect home after login, got %q", got)
	}

	// The refreshed session cookie must now read as authenticated.
	authedReq := httptest.NewRequest("GET", "/catalog/item/create", nil)
	for _, c := range rec.Result().Cookies() {
		authedReq.AddCookie(c)
	}
	if !srv.authenticated(authedReq) {
		t.Error("Session should hold the access token after the callback")
	}
}

func TestCallbackStateMismatch(t *testing.T) {
	_, _, handler := setupTestServer(t, fakeAuth{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/oauth2callback?code=good-code&state=forged", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Forged state should fail with 500, got %d", rec.Code)
	}
}

func TestCallbackExchangeFailure(t *testing.T) {
	_, _, handler := setupTestServer(t, fakeAuth{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/login", nil))
	redirect, _ := url.Parse(location(t, rec))
	state := redirect.Query().Get("state")
	cookies := rec.Result().Cookies()

	req := httptest.NewRequest("GET", "/oauth2callback?code=stolen-code&state="+url.QueryEscape(state), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Failed exchange should return 500, got %d", rec.Code)
	}
}

func TestSessionExpiryInvalidatesCookie(t *testing.T) {
	st, err := store.Open("sqlite://:memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	srv, err := New(st, nil, "test-secret-key", time.Second, false, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to build server: %v", err)
	}
	handler := srv.Handler("/oauth2callback")
	cookie := loginCookie(t, srv)

	req := httptest.NewRequest("GET", "/catalog/item/create", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Fresh session should pass the gate, got status %d", rec.Code)
	}

	time.Sleep(2 * time.Second)

	req = httptest.NewRequest("GET", "/catalog/item/create", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := location(t, rec); got != "/login" {
		t.Errorf("Expired session cookie should redirect to '/login', got %q", got)
	}
}

func TestCatalogJSONEmptyStore(t *testing.T) {
	_, _, handler := setupTestServer(t, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/catalog.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `"Categories":[]`) {
		t.Errorf("Empty catalog should serialize as an empty array, got: %s", body)
	}
}

func TestCategoryItemsListsAllCategories(t *testing.T) {
	_, st, handler := setupTestServer(t, nil)
	seedCategory(t, st, "Books")
	seedCategory(t, st, "Films")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/catalog/Books/Items", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Films") {
		t.Error("Category listing should link to the other categories")
	}
}

func TestUnmatchedRouteRenders404(t *testing.T) {
	_, _, handler := setupTestServer(t, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/no/such/page", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "404") {
		t.Error("Expected the rendered 404 page")
	}
}
