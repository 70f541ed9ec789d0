package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shineum/pdf-mailer/internal/auth"
	"github.com/shineum/pdf-mailer/internal/config"
	"github.com/shineum/pdf-mailer/internal/email"
	"github.com/shineum/pdf-mailer/internal/imageproc"
	"github.com/shineum/pdf-mailer/internal/service"
	"github.com/shineum/pdf-mailer/internal/subject"
)

type page struct {
	Title   string
	Session auth.Session
	Error   string
}

type loginView struct {
	page
	Username string
}

type formValues struct {
	Category  string
	Subtopic  string
	Body      string
	Recipient string
	Size      int
	Quality   int
}

type indexView struct {
	page
	Issues     []string
	Transport  string
	Mode       string
	Recipients []string
	Sizes      []int
	Categories []subject.Category
	Subject    string
	Form       formValues
}

type previewView struct {
	page
	Draft          *email.Draft
	Pages          []imageproc.Page
	Mode           string
	Body           string
	SendingEnabled bool
	ExpiresAt      time.Time
}

type resultView struct {
	page
	Sent    bool
	To      []string
	Subject string
}

func (s *server) newPage(c *gin.Context) page {
	return page{Title: title, Session: sessionOf(c)}
}

func (s *server) loginPage(c *gin.Context) {
	if sessionOf(c).Authenticated {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.HTML(http.StatusOK, "login.html", loginView{page: s.newPage(c)})
}

func (s *server) login(c *gin.Context) {
	var form loginForm
	view := loginView{page: s.newPage(c)}

	if err := c.ShouldBind(&form); err != nil {
		s.Metrics.RecordLogin(false)
		view.Error = bindMessage(err)
		c.HTML(http.StatusBadRequest, "login.html", view)
		return
	}
	view.Username = form.Username

	if err := s.Auth.Verify(form.Username, form.Password); err != nil {
		s.Metrics.RecordLogin(false)
		s.Logger.Warn("login failed", zap.String("username", form.Username), zap.String("ip", c.ClientIP()))
		view.Error = "Invalid username or password."
		c.HTML(http.StatusUnauthorized, "login.html", view)
		return
	}

	token, err := s.Sessions.Issue(form.Username)
	if err != nil {
		s.Logger.Error("failed to issue session", zap.Error(err))
		view.Error = "Could not start a session. Try again."
		c.HTML(http.StatusInternalServerError, "login.html", view)
		return
	}
	s.Metrics.RecordLogin(true)
	s.Logger.Info("login", zap.String("username", form.Username))

	s.setSessionCookie(c, token, int(s.Sessions.TTL().Seconds()))
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *server) logout(c *gin.Context) {
	s.setSessionCookie(c, "", -1)
	c.Redirect(http.StatusSeeOther, "/login")
}

func (s *server) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, value, maxAge, "/", "", s.SecureCookies, true)
}

func (s *server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", s.indexView(c, formValues{
		Size:    s.DefaultSize,
		Quality: s.DefaultQuality,
	}))
}

func (s *server) indexView(c *gin.Context, form formValues) indexView {
	settings := s.Mailer.Settings()
	view := indexView{
		page:       s.newPage(c),
		Issues:     config.IssueList(settings.Issues),
		Transport:  s.TransportLabel,
		Mode:       s.Mailer.Mode().String(),
		Recipients: settings.Recipients,
		Sizes:      config.SizeChoices,
		Categories: subject.Categories,
		Form:       form,
	}
	if view.Transport == "" {
		view.Transport = s.Mailer.TransportName()
	}
	if form.Recipient == "" && len(settings.Recipients) > 0 {
		view.Form.Recipient = settings.Recipients[0]
	}
	if cat, err := subject.ParseCategory(form.Category); err == nil {
		view.Subject, _ = s.Mailer.Subject(cat, form.Subtopic)
	}
	return view
}

func (s *server) subject(c *gin.Context) {
	var q subjectQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.String(http.StatusBadRequest, bindMessage(err))
		return
	}
	cat, err := subject.ParseCategory(q.Category)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	subj, err := s.Mailer.Subject(cat, q.Subtopic)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	c.String(http.StatusOK, subj)
}

func (s *server) convert(c *gin.Context) {
	var form convertForm
	bindErr := c.ShouldBind(&form)
	values := formValues{
		Category:  form.Category,
		Subtopic:  form.Subtopic,
		Body:      form.Body,
		Recipient: form.Recipient,
		Size:      form.Size,
		Quality:   form.Quality,
	}
	if bindErr != nil {
		status, msg := http.StatusBadRequest, bindMessage(bindErr)
		if isBodyTooLarge(bindErr) {
			status, msg = describeError(bindErr)
		}
		s.renderIndexError(c, status, values, msg)
		return
	}

	fh, err := c.FormFile("document")
	if err != nil {
		status, msg := http.StatusBadRequest, "Choose a PDF file to upload."
		if isBodyTooLarge(err) {
			status, msg = describeError(err)
		}
		s.renderIndexError(c, status, values, msg)
		return
	}
	doc, err := fh.Open()
	if err != nil {
		s.renderIndexError(c, http.StatusBadRequest, values, "The upload could not be read.")
		return
	}
	defer doc.Close()

	// Bound by the "topic" rule above.
	category, _ := subject.ParseCategory(form.Category)
	session := sessionOf(c)

	preview, err := s.Mailer.Convert(c.Request.Context(), service.ConvertRequest{
		Owner:     session.Username,
		Filename:  fh.Filename,
		Size:      fh.Size,
		Document:  doc,
		ImageSize: form.Size,
		Quality:   form.Quality,
		Category:  category,
		Subtopic:  form.Subtopic,
		Body:      form.Body,
		Recipient: form.Recipient,
	})
	if err != nil {
		status, msg := describeError(err)
		s.renderIndexError(c, status, values, msg)
		return
	}

	c.HTML(http.StatusOK, "preview.html", previewView{
		page:           s.newPage(c),
		Draft:          preview.Draft,
		Pages:          preview.Pages,
		Mode:           preview.Draft.Mode.String(),
		Body:           form.Body,
		SendingEnabled: s.Mailer.SendingEnabled(),
		ExpiresAt:      preview.ExpiresAt,
	})
}

func (s *server) renderIndexError(c *gin.Context, status int, form formValues, msg string) {
	if form.Size == 0 {
		form.Size = s.DefaultSize
	}
	if form.Quality == 0 {
		form.Quality = s.DefaultQuality
	}
	view := s.indexView(c, form)
	view.Error = msg
	c.HTML(status, "index.html", view)
}

func (s *server) send(c *gin.Context) {
	view := resultView{page: s.newPage(c)}

	var form sendForm
	if err := c.ShouldBind(&form); err != nil {
		view.Error = bindMessage(err)
		c.HTML(http.StatusBadRequest, "result.html", view)
		return
	}

	d, err := s.Mailer.Send(c.Request.Context(), sessionOf(c).Username, form.DraftID)
	if err != nil {
		status, msg := describeError(err)
		view.Error = msg
		c.HTML(status, "result.html", view)
		return
	}

	view.Sent = true
	view.To = d.To
	view.Subject = d.Subject
	c.HTML(http.StatusOK, "result.html", view)
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
