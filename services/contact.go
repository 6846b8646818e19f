package services

import (
	"context"
	"net/mail"
	"strings"

	"trusight/apperr"
	"trusight/logger"
	"trusight/models"
)

type ContactRepository interface {
	Insert(ctx context.Context, c *models.ContactSubmission) error
}

type ContactService struct {
	store ContactRepository
}

func NewContactService(store ContactRepository) *ContactService {
	return &ContactService{store: store}
}

// Submit validates and stores a contact or job application message.
func (s *ContactService) Submit(ctx context.Context, c models.ContactSubmission) (string, error) {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.TrimSpace(c.Email)
	c.Subject = strings.TrimSpace(c.Subject)
	c.Message = strings.TrimSpace(c.Message)

	if err := ValidateContact(&c); err != nil {
		return "", err
	}
	if err := s.store.Insert(ctx, &c); err != nil {
		logger.Log.Errorf("[CONTACT] store %s submission: %v", c.Type, err)
		return "", err
	}

	logger.Log.Infof("[CONTACT] %s submission %d stored", c.Type, c.ID)
	if c.Type == models.ContactJobApplication {
		return "Thank you for your application! We'll review it and get back to you soon.", nil
	}
	return "Thank you for your message! We'll get back to you soon.", nil
}

// ValidateContact checks required fields and defaults the type.
func ValidateContact(c *models.ContactSubmission) error {
	required := []struct{ name, value string }{
		{"firstName", c.FirstName},
		{"lastName", c.LastName},
		{"email", c.Email},
		{"subject", c.Subject},
		{"message", c.Message},
	}
	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperr.Validation(apperr.CodeMissingField, "missing required fields: "+strings.Join(missing, ", "))
	}

	if !validEmail(c.Email) {
		return apperr.Validation(apperr.CodeInvalidFormat, "invalid email address")
	}

	switch c.Type {
	case "":
		c.Type = models.ContactGeneral
	case models.ContactGeneral, models.ContactJobApplication:
	default:
		return apperr.Validation(apperr.CodeInvalidFormat, "type must be contact or job_application")
	}
	return nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
