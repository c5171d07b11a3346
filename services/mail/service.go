package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmlTemplate "html/template"
	"os"
	"path/filepath"
	textTemplate "text/template"
	"time"

	"github.com/tech-arch1tect/passcode/config"
	"github.com/tech-arch1tect/passcode/services/logging"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// CodeTemplate is the base name looked up as CodeTemplate.txt and
// CodeTemplate.html inside MAIL_TEMPLATES_DIR.
const CodeTemplate = "otp_code"

const defaultTextBody = `Hello,

Your {{.Purpose}} code for {{.AppName}} is: {{.Code}}

It expires in {{.ExpiresIn}} (at {{.ExpiresAt.Format "15:04 MST"}}) and can be used once.
If you did not request this code you can ignore this email.
`

const defaultHTMLBody = `<p>Hello,</p>
<p>Your {{.Purpose}} code for {{.AppName}} is:</p>
<p style="font-size:24px;font-weight:bold;letter-spacing:4px">{{.Code}}</p>
<p>It expires in {{.ExpiresIn}} (at {{.ExpiresAt.Format "15:04 MST"}}) and can be used once.</p>
<p>If you did not request this code you can ignore this email.</p>
`

type Client interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type CodeData struct {
	AppName   string
	Purpose   string
	Code      string
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

type Service struct {
	config  *config.MailConfig
	appName string
	client  Client
	html    *htmlTemplate.Template
	text    *textTemplate.Template
	logger  *logging.Service
	now     func() time.Time
}

func NewService(cfg *config.MailConfig, appName string, logger *logging.Service) (*Service, error) {
	if logger != nil {
		logger.Info("initializing mail service",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.String("encryption", cfg.Encryption),
			zap.String("from_address", cfg.FromAddress))
	}

	client, err := newClient(cfg)
	if err != nil {
		if logger != nil {
			logger.Error("failed to create mail client",
				zap.Error(err),
				zap.String("host", cfg.Host),
				zap.Int("port", cfg.Port))
		}
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return NewServiceWithClient(cfg, appName, logger, client)
}

func NewServiceWithClient(cfg *config.MailConfig, appName string, logger *logging.Service, client Client) (*Service, error) {
	if cfg.FromAddress == "" {
		return nil, errors.New("MAIL_FROM_ADDRESS is required")
	}
	if client == nil {
		return nil, errors.New("mail client is required")
	}
	if appName == "" {
		appName = "passcode"
	}

	service := &Service{
		config:  cfg,
		appName: appName,
		client:  client,
		logger:  logger,
		now:     time.Now,
	}

	if err := service.loadTemplates(); err != nil {
		if logger != nil {
			logger.Error("failed to load mail templates", zap.Error(err))
		}
		return nil, fmt.Errorf("failed to load mail templates: %w", err)
	}

	return service, nil
}

func newClient(cfg *config.MailConfig) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
	}

	switch cfg.Encryption {
	case "ssl":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPortPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}

	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}

	return mail.NewClient(cfg.Host, opts...)
}

// loadTemplates starts from the built-in bodies and lets files in the
// templates directory replace either of them.
func (s *Service) loadTemplates() error {
	s.text = textTemplate.Must(textTemplate.New(CodeTemplate + ".txt").Parse(defaultTextBody))
	s.html = htmlTemplate.Must(htmlTemplate.New(CodeTemplate + ".html").Parse(defaultHTMLBody))

	if s.config.TemplatesDir == "" {
		return nil
	}

	textPath := filepath.Join(s.config.TemplatesDir, CodeTemplate+".txt")
	if ok, err := fileExists(textPath); err != nil {
		return err
	} else if ok {
		tmpl, err := textTemplate.ParseFiles(textPath)
		if err != nil {
			return fmt.Errorf("failed to parse text template: %w", err)
		}
		s.text = tmpl
	}

	htmlPath := filepath.Join(s.config.TemplatesDir, CodeTemplate+".html")
	if ok, err := fileExists(htmlPath); err != nil {
		return err
	} else if ok {
		tmpl, err := htmlTemplate.ParseFiles(htmlPath)
		if err != nil {
			return fmt.Errorf("failed to parse HTML template: %w", err)
		}
		s.html = tmpl
	}

	if s.logger != nil {
		s.logger.Info("mail templates loaded", zap.String("templates_dir", s.config.TemplatesDir))
	}
	return nil
}

func (s *Service) NewMessage() (*mail.Msg, error) {
	message := mail.NewMsg()

	var err error
	if s.config.FromName != "" {
		err = message.FromFormat(s.config.FromName, s.config.FromAddress)
	} else {
		err = message.From(s.config.FromAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set FROM address: %w", err)
	}

	return message, nil
}

// SendCode mails a freshly issued code. The code goes into the message body
// only; it is never logged.
func (s *Service) SendCode(ctx context.Context, to, purpose, code string, expiresAt time.Time) error {
	message, err := s.NewMessage()
	if err != nil {
		return err
	}

	if err := message.To(to); err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to set TO address", zap.Error(err))
		}
		return fmt.Errorf("failed to set TO address: %w", err)
	}

	message.Subject(fmt.Sprintf("Your %s code", purpose))

	data := CodeData{
		AppName:   s.appName,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: expiresAt,
		ExpiresIn: expiresAt.Sub(s.now()).Round(time.Second),
	}
	if err := s.render(message, data); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to render code email", zap.Error(err))
		}
		return fmt.Errorf("failed to render template: %w", err)
	}

	startTime := time.Now()
	err = s.client.DialAndSendWithContext(ctx, message)
	duration := time.Since(startTime)

	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to send code email",
				zap.Error(err),
				zap.String("purpose", purpose),
				zap.Duration("attempt_duration", duration))
		}
		return err
	}

	if s.logger != nil {
		s.logger.Info("code email sent",
			zap.String("purpose", purpose),
			zap.Duration("send_duration", duration))
	}
	return nil
}

func (s *Service) render(message *mail.Msg, data CodeData) error {
	var textBuf bytes.Buffer
	if err := s.text.Execute(&textBuf, data); err != nil {
		return fmt.Errorf("failed to execute text template: %w", err)
	}

	var htmlBuf bytes.Buffer
	if err := s.html.Execute(&htmlBuf, data); err != nil {
		return fmt.Errorf("failed to execute HTML template: %w", err)
	}

	message.SetBodyString(mail.TypeTextPlain, textBuf.String())
	message.AddAlternativeString(mail.TypeTextHTML, htmlBuf.String())
	return nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
