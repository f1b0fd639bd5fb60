package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/harentsoaR/onlyfix-api/internal/directory"
	"github.com/harentsoaR/onlyfix-api/internal/models"
)

const maxJSONBody = 1 << 20

type registerCommon struct {
	Name     string      `json:"name" binding:"required"`
	Email    string      `json:"email" binding:"required,email"`
	Password string      `json:"password" binding:"required,min=6"`
	Role     models.Role `json:"role" binding:"required"`
	Phone    string      `json:"phone" binding:"required"`
}

type registerPatientRequest struct {
	registerCommon
	Age     int    `json:"age" binding:"required,min=1,max=150"`
	Address string `json:"address" binding:"required"`
}

// Experience is a pointer so a missing value is told apart from zero years.
// Rating falls back to models.DefaultDentistRating only when absent.
type registerDentistRequest struct {
	registerCommon
	Specialization string   `json:"specialization" binding:"required"`
	Experience     *int     `json:"experience" binding:"required,min=0,max=80"`
	Location       string   `json:"location" binding:"required"`
	Availability   string   `json:"availability" binding:"required"`
	LicenseNumber  string   `json:"licenseNumber" binding:"required"`
	Rating         *float64 `json:"rating" binding:"omitempty,min=0,max=5"`
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(models.JSONFieldName)
	}
}

// decodeStrict decodes body into dst, rejecting fields dst does not declare.
func decodeStrict(body []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// parseRegistration turns the flat registration body into a typed input. The
// role picks which profile fields are accepted.
func parseRegistration(body []byte) (directory.RegisterInput, error) {
	var probe struct {
		Role models.Role `json:"role"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return directory.RegisterInput{}, err
	}

	switch probe.Role {
	case models.RolePatient:
		var req registerPatientRequest
		if err := decodeStrict(body, &req); err != nil {
			return directory.RegisterInput{}, err
		}
		if err := binding.Validator.ValidateStruct(&req); err != nil {
			return directory.RegisterInput{}, &directory.ValidationError{Fields: models.FieldErrors(err)}
		}
		return directory.RegisterInput{
			Name: req.Name, Email: req.Email, Password: req.Password, Role: req.Role, Phone: req.Phone,
			Patient: &models.PatientProfile{Age: req.Age, Address: req.Address},
		}, nil

	case models.RoleDentist:
		var req registerDentistRequest
		if err := decodeStrict(body, &req); err != nil {
			return directory.RegisterInput{}, err
		}
		if err := binding.Validator.ValidateStruct(&req); err != nil {
			return directory.RegisterInput{}, &directory.ValidationError{Fields: models.FieldErrors(err)}
		}
		return directory.RegisterInput{
			Name: req.Name, Email: req.Email, Password: req.Password, Role: req.Role, Phone: req.Phone,
			Dentist: &models.DentistProfile{
				Specialization: req.Specialization,
				Experience:     *req.Experience,
				Location:       req.Location,
				Availability:   req.Availability,
				LicenseNumber:  req.LicenseNumber,
				Rating:         lo.FromPtrOr(req.Rating, models.DefaultDentistRating),
			},
		}, nil
	}
	return directory.RegisterInput{}, fmt.Errorf("role must be %q or %q", models.RolePatient, models.RoleDentist)
}

func (h *Handler) RegisterUser(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBody))
	if err != nil {
		h.respondError(c, err)
		return
	}

	in, err := parseRegistration(body)
	if err != nil {
		var validErr *directory.ValidationError
		if errors.As(err, &validErr) {
			h.respondError(c, err)
			return
		}
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	user, err := h.Directory.Register(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": user.Public()})
}

func (h *Handler) Login(c *gin.Context) {
	var loginReq struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	user, err := h.Directory.Authenticate(c.Request.Context(), loginReq.Email, loginReq.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, err := h.Tokens.Generate(user.ID.Hex(), user.Role)
	if err != nil {
		h.respondError(c, fmt.Errorf("generating token: %w", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user.Public()})
}

// GetCurrentUser returns the profile of the authenticated caller.
func (h *Handler) GetCurrentUser(c *gin.Context) {
	req, ok := requester(c)
	if !ok {
		return
	}

	user, err := h.Directory.FindByID(c.Request.Context(), req.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user.Public()})
}

func (h *Handler) ListDentists(c *gin.Context) {
	dentists, err := h.Directory.ListByRole(c.Request.Context(), models.RoleDentist)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dentists": dentists})
}

// SeedDentists inserts the sample dentists when none exist yet.
func (h *Handler) SeedDentists(c *gin.Context) {
	n, err := h.Directory.SeedSampleDentists(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if n == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "Dentists already exist", "created": 0})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Sample dentists created", "created": n})
}
