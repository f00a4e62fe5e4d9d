package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/alimgiray/personhub/internal/models"
	"github.com/alimgiray/personhub/internal/repositories"
	"github.com/alimgiray/personhub/internal/services"
)

type PersonHandler struct {
	personService *services.PersonService
}

func NewPersonHandler(personService *services.PersonService) *PersonHandler {
	return &PersonHandler{
		personService: personService,
	}
}

// CreatePerson handles POST /people
func (h *PersonHandler) CreatePerson(c *gin.Context) {
	var req models.NewPersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed request body"})
		return
	}

	person, err := h.personService.Create(c.Request.Context(), &req)
	if err != nil {
		var verr *models.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid person", "fields": verr.Fields})
		case errors.Is(err, services.ErrDuplicateNickname):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Nickname already taken"})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create person"})
		}
		return
	}

	c.Header("Location", "/people/"+person.ID.String())
	c.JSON(http.StatusCreated, person)
}

// GetPerson handles GET /people/:id
func (h *PersonHandler) GetPerson(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
		return
	}

	person, err := h.personService.Get(c.Request.Context(), id)
	if errors.Is(err, services.ErrPersonNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get person"})
		return
	}

	c.JSON(http.StatusOK, person)
}

// SearchPeople handles GET /people?t=term
func (h *PersonHandler) SearchPeople(c *gin.Context) {
	term := strings.TrimSpace(c.Query("t"))
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Search term is required"})
		return
	}

	people, err := h.personService.Search(c.Request.Context(), term, repositories.DefaultSearchLimit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search people"})
		return
	}

	c.JSON(http.StatusOK, people)
}

// CountPeople handles GET /people-count. The count only includes stored people.
func (h *PersonHandler) CountPeople(c *gin.Context) {
	count, err := h.personService.Count(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count people"})
		return
	}

	c.String(http.StatusOK, strconv.FormatInt(count, 10))
}
