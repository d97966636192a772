package web

import (
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"github.com/pankajredekar/catalog/internal/forms"
	"github.com/pankajredekar/catalog/internal/models"
	"github.com/pankajredekar/catalog/internal/store"
)

// handleHome lists all category names and every item, newest first
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	type latestItem struct {
		Title    string
		Category string
	}
	type pageData struct {
		Authenticated bool
		Categories    []models.Category
		Items         []latestItem
	}

	categories, err := s.store.Categories()
	if err != nil {
		s.serverError(w, err)
		return
	}
	items, err := s.store.AllItems()
	if err != nil {
		s.serverError(w, err)
		return
	}

	data := pageData{
		Authenticated: s.authenticated(r),
		Categories:    categories,
	}
	for _, item := range items {
		data.Items = append(data.Items, latestItem{Title: item.Title, Category: item.Category.Name})
	}

	s.render(w, "index.gohtml", data)
}

// handleCategoryItems lists the items of one category, newest first. An
// unknown category name redirects home
func (s *Server) handleCategoryItems(w http.ResponseWriter, r *http.Request) {
	type pageData struct {
		Authenticated bool
		Category      string
		Categories    []models.Category
		Items         []models.CategoryItem
	}

	name := r.PathValue("category")
	category, ok, err := s.store.CategoryByName(name)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	items, err := s.store.ItemsByCategory(category.ID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	categories, err := s.store.Categories()
	if err != nil {
		s.serverError(w, err)
		return
	}

	s.render(w, "items.gohtml", pageData{
		Authenticated: s.authenticated(r),
		Category:      category.Name,
		Categories:    categories,
		Items:         items,
	})
}

// handleItemDetail shows a single item; unknown category or item redirects home
func (s *Server) handleItemDetail(w http.ResponseWriter, r *http.Request) {
	type pageData struct {
		Authenticated bool
		Category      string
		Item          *models.CategoryItem
	}

	name := r.PathValue("category")
	if _, ok, err := s.store.CategoryByName(name); err != nil {
		s.serverError(w, err)
		return
	} else if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	item, ok, err := s.store.ItemInCategory(name, r.PathValue("item"))
	if err != nil {
		s.serverError(w, err)
		return
	}
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	s.render(w, "item.gohtml", pageData{
		Authenticated: s.authenticated(r),
		Category:      name,
		Item:          item,
	})
}

// handleCreate renders the creation form and inserts validated submissions
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	type pageData struct {
		Authenticated bool
		Categories    []models.Category
		Form          *forms.ItemForm
		CSRFField     template.HTML
	}

	categories, err := s.store.Categories()
	if err != nil {
		s.serverError(w, err)
		return
	}

	form := forms.NewItemForm("", "", "")
	if r.Method == http.MethodPost {
		form = forms.NewItemForm(r.PostFormValue("title"), r.PostFormValue("description"), r.PostFormValue("category"))
		if form.ValidateCreate() {
			item := models.CategoryItem{
				Title:       form.Title,
				Description: optionalDescription(form.Description),
				Created:     time.Now(),
				CategoryID:  form.CategoryID,
			}
			err := s.store.CreateItem(&item)
			switch {
			case err == nil:
				http.Redirect(w, r, "/", http.StatusFound)
				return
			case store.IsDuplicate(err):
				form.Fail("title", "Title is already taken")
			case store.IsBadReference(err):
				form.Fail("category", "Choose a category")
			default:
				s.serverError(w, err)
				return
			}
		}
	}

	s.render(w, "create.gohtml", pageData{
		Authenticated: true,
		Categories:    categories,
		Form:          form,
		CSRFField:     csrf.TemplateField(r),
	})
}

// handleEdit updates an existing item in place. The update is a logical PUT
// carried over a POST form
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	type pageData struct {
		Authenticated bool
		Title         string
		Categories    []models.Category
		Form          *forms.ItemForm
		CSRFField     template.HTML
	}

	title := r.PathValue("item")
	item, ok, err := s.store.ItemByTitle(title)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	categories, err := s.store.Categories()
	if err != nil {
		s.serverError(w, err)
		return
	}

	var form *forms.ItemForm
	if r.Method == http.MethodPost {
		form = forms.NewItemForm(r.PostFormValue("title"), r.PostFormValue("description"), r.PostFormValue("category"))
		if form.ValidateEdit() {
			item.Title = form.Title
			item.Description = optionalDescription(form.Description)
			item.CategoryID = form.CategoryID

			err := s.store.UpdateItem(item)
			switch {
			case err == nil:
				http.Redirect(w, r, categoryListingPath(categories, item.CategoryID), http.StatusFound)
				return
			case store.IsDuplicate(err):
				form.Fail("title", "Title is already taken")
			case store.IsBadReference(err):
				form.Fail("category", "Choose a category")
			default:
				s.serverError(w, err)
				return
			}
		}
	} else {
		form = forms.NewItemForm(item.Title, descriptionValue(item.Description), strconv.FormatUint(uint64(item.CategoryID), 10))
		form.CategoryID = item.CategoryID
	}

	s.render(w, "edit.gohtml", pageData{
		Authenticated: true,
		Title:         title,
		Categories:    categories,
		Form:          form,
		CSRFField:     csrf.TemplateField(r),
	})
}

// handleDelete removes an item after confirmation. The removal is a logical
// DELETE carried over a POST form
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	type pageData struct {
		Authenticated bool
		Title         string
		CSRFField     template.HTML
	}

	title := r.PathValue("item")
	_, ok, err := s.store.ItemByTitle(title)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if r.Method == http.MethodPost {
		if err := s.store.DeleteItemByTitle(title); err != nil {
			s.serverError(w, err)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	s.render(w, "delete.gohtml", pageData{Authenticated: true, Title: title, CSRFField: csrf.TemplateField(r)})
}

// handleCatalogJSON returns the full category/items tree as one document
func (s *Server) handleCatalogJSON(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.Catalog()
	if err != nil {
		s.serverError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Categories []models.Category
	}{categories}); err != nil {
		s.logger.Error("failed to encode catalog", zap.Error(err))
	}
}

// handleLogin starts the external authentication redirect
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.authenticated(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if s.auth == nil {
		http.Error(w, "login is not configured", http.StatusInternalServerError)
		return
	}

	session, _ := s.sessions.Get(r, sessionName)
	state := uuid.NewString()
	session.Values[stateKey] = state
	if err := session.Save(r, w); err != nil {
		s.serverError(w, err)
		return
	}

	http.Redirect(w, r, s.auth.AuthCodeURL(state), http.StatusFound)
}

// handleCallback exchanges the provider response for an access token and
// stores it in the session
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		http.Error(w, "login is not configured", http.StatusInternalServerError)
		return
	}

	session, _ := s.sessions.Get(r, sessionName)
	want, _ := session.Values[stateKey].(string)
	if want == "" || r.URL.Query().Get("state") != want {
		http.Error(w, "server-side error occurred", http.StatusInternalServerError)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "server-side error occurred", http.StatusInternalServerError)
		return
	}

	token, err := s.auth.Exchange(r.Context(), code)
	if err != nil {
		s.serverError(w, err)
		return
	}

	delete(session.Values, stateKey)
	session.Values[accessTokenKey] = token.AccessToken
	if err := session.Save(r, w); err != nil {
		s.serverError(w, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// handleLogout drops the stored access token. Logging out while already
// unauthenticated is a plain redirect home
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := s.sessions.Get(r, sessionName)
	token, _ := session.Values[accessTokenKey].(string)
	if token == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	delete(session.Values, accessTokenKey)
	if err := session.Save(r, w); err != nil {
		s.serverError(w, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// handleNotFound renders the 404 page for unmatched routes
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	type pageData struct {
		Authenticated bool
	}
	w.WriteHeader(http.StatusNotFound)
	s.render(w, "404.gohtml", pageData{Authenticated: s.authenticated(r)})
}

func optionalDescription(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func descriptionValue(description *string) string {
	if description == nil {
		return ""
	}
	return *description
}

// categoryListingPath builds the items route for the category with the given
// id, falling back to home if the id is not in the list
func categoryListingPath(categories []models.Category, id uint) string {
	for _, category := range categories {
		if category.ID == id {
			return "/catalog/" + url.PathEscape(category.Name) + "/Items"
		}
	}
	return "/"
}
