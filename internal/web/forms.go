package web

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/shineum/pdf-mailer/internal/subject"
)

type loginForm struct {
	Username string `form:"username" binding:"required,max=100"`
	Password string `form:"password" binding:"required,max=200"`
}

type convertForm struct {
	Category  string `form:"category" binding:"topic"`
	Subtopic  string `form:"subtopic" binding:"max=200"`
	Body      string `form:"body" binding:"max=20000"`
	Recipient string `form:"recipient" binding:"omitempty,email"`
	Size      int    `form:"size" binding:"required,oneof=600 800 1024 1280"`
	Quality   int    `form:"quality" binding:"required,min=10,max=100"`
}

type sendForm struct {
	DraftID string `form:"draft_id" binding:"required,uuid"`
}

type subjectQuery struct {
	Category string `form:"category" binding:"topic"`
	Subtopic string `form:"subtopic" binding:"max=200"`
}

var registerOnce sync.Once

// registerValidators adds the custom rules to gin's validator engine. gin
// shares one engine per process, so this runs once.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("topic", func(fl validator.FieldLevel) bool {
			_, err := subject.ParseCategory(fl.Field().String())
			return err == nil
		})
	})
}

var fieldLabels = map[string]string{
	"Username":  "username",
	"Password":  "password",
	"Category":  "topic type",
	"Subtopic":  "subtopic",
	"Body":      "message body",
	"Recipient": "recipient",
	"Size":      "image size",
	"Quality":   "image quality",
	"DraftID":   "draft",
}

// bindMessage turns a binding error into one line for the form page.
func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid form submission."
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		label, ok := fieldLabels[fe.Field()]
		if !ok {
			label = strings.ToLower(fe.Field())
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("The %s is required.", label))
		case "max":
			if fe.Kind() == reflect.String {
				msgs = append(msgs, fmt.Sprintf("The %s is too long.", label))
			} else {
				msgs = append(msgs, fmt.Sprintf("The %s is too large.", label))
			}
		case "min":
			msgs = append(msgs, fmt.Sprintf("The %s is too small.", label))
		case "oneof", "topic":
			msgs = append(msgs, fmt.Sprintf("The %s is not one of the offered options.", label))
		case "email":
			msgs = append(msgs, fmt.Sprintf("The %s is not a valid email address.", label))
		default:
			msgs = append(msgs, fmt.Sprintf("The %s is invalid.", label))
		}
	}
	return strings.Join(msgs, " ")
}
