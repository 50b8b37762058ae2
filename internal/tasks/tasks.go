package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/brainskev/houseListing2-sub000/internal/config"
	"github.com/brainskev/houseListing2-sub000/internal/email"
	"github.com/brainskev/houseListing2-sub000/internal/models"
	"github.com/brainskev/houseListing2-sub000/internal/services"
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// Task types.
const (
	TypeEnquiryNotify = "enquiry:notify"
	TypeEmailDelivery = "email:deliver"
)

const (
	queueCritical = "critical"
	queueDefault  = "default"
	previewRunes  = 280
)

// IAsynqClient is the part of *asynq.Client used to enqueue tasks.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// --- Task Client (Enqueuing tasks) ---

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{Addr: opts.Addr, Password: opts.Password, DB: opts.DB}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

// EnquiryNotifyPayload describes a newly created enquiry conversation.
type EnquiryNotifyPayload struct {
	ConversationID string              `json:"conversation_id"`
	PropertyID     string              `json:"property_id,omitempty"`
	CreatedBy      string              `json:"created_by"`
	Contact        *models.ContactInfo `json:"contact,omitempty"`
	Preview        string              `json:"preview"`
}

// EnquiryNotifier queues a staff notification for every new enquiry.
type EnquiryNotifier struct {
	client IAsynqClient
	log    *zap.Logger
}

var _ services.IEnquiryNotifier = (*EnquiryNotifier)(nil)

func NewEnquiryNotifier(client IAsynqClient, log *zap.Logger) *EnquiryNotifier {
	return &EnquiryNotifier{client: client, log: log}
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "…"
}

func (n *EnquiryNotifier) NotifyNewEnquiry(ctx context.Context, conv *models.Conversation, msg *models.Message) error {
	payload := EnquiryNotifyPayload{
		ConversationID: conv.ID.String(),
		CreatedBy:      conv.CreatedBy.String(),
		Contact:        conv.Contact,
		Preview:        preview(msg.Text),
	}
	if conv.PropertyID != nil {
		payload.PropertyID = conv.PropertyID.String()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal enquiry notify payload: %w", err)
	}
	info, err := n.client.EnqueueContext(ctx, asynq.NewTask(TypeEnquiryNotify, data),
		asynq.Queue(queueDefault), asynq.MaxRetry(5), asynq.Timeout(time.Minute))
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", TypeEnquiryNotify, err)
	}
	n.log.Debug("queued enquiry notification", zap.String("task_id", info.ID), zap.String("conversation_id", payload.ConversationID))
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg             *config.Config
	log             *zap.Logger
	emailSender     email.Sender
	userService     services.IUserService
	propertyService services.IPropertyService
	taskClient      IAsynqClient
	now             func() time.Time
}

func NewTaskProcessor(
	cfg *config.Config,
	log *zap.Logger,
	emailSender email.Sender,
	userService services.IUserService,
	propertyService services.IPropertyService,
	taskClient IAsynqClient,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:             cfg,
		log:             log,
		emailSender:     emailSender,
		userService:     userService,
		propertyService: propertyService,
		taskClient:      taskClient,
		now:             time.Now,
	}
}

// SetupServer configures an Asynq server. The caller runs it with NewServeMux.
func SetupServer(rdb *redis.Client, log *zap.Logger) *asynq.Server {
	return asynq.NewServer(redisOpt(rdb), asynq.Config{
		Queues: map[string]int{
			queueCritical: 6,
			queueDefault:  3,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("task failed",
				zap.String("type", task.Type()),
				zap.ByteString("payload", task.Payload()),
				zap.Error(err))
		}),
	})
}

// NewServeMux registers every background task handler.
func NewServeMux(processor *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEnquiryNotify, processor.HandleEnquiryNotifyTask)
	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	return mux
}

// --- Task Handlers ---

var notifyBodyTemplate = template.Must(template.New("enquiry_notify").Parse(
	`A new enquiry was received on {{.AppName}}.

Subject: {{.Topic}}
{{- with .Contact}}
From: {{.Name}}{{if .Email}} <{{.Email}}>{{end}}{{if .Phone}} ({{.Phone}}){{end}}
{{- end}}

{{.Preview}}

Conversation: {{.ConversationID}}
`))

// HandleEnquiryNotifyTask fans a new enquiry out into one email per staff member.
func (p *TaskProcessor) HandleEnquiryNotifyTask(ctx context.Context, t *asynq.Task) error {
	var payload EnquiryNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal enquiry notify payload: %v: %w", err, asynq.SkipRetry)
	}

	topic := "general question"
	if payload.PropertyID != "" {
		propertyID, err := utils.ParseSixID(payload.PropertyID)
		if err != nil {
			return fmt.Errorf("invalid property id %q: %v: %w", payload.PropertyID, err, asynq.SkipRetry)
		}
		property, err := p.propertyService.FindPropertyByID(ctx, propertyID)
		switch {
		case err == nil:
			topic = property.Title
		case errors.Is(err, mongo.ErrNoDocuments):
			topic = "property " + payload.PropertyID
		default:
			return fmt.Errorf("failed to load property %s: %w", payload.PropertyID, err)
		}
	}

	staff, err := p.userService.ListStaff(ctx)
	if err != nil {
		return fmt.Errorf("failed to load staff for notification: %w", err)
	}

	var body bytes.Buffer
	err = notifyBodyTemplate.Execute(&body, map[string]any{
		"AppName":        p.cfg.AppName,
		"Topic":          topic,
		"Contact":        payload.Contact,
		"Preview":        payload.Preview,
		"ConversationID": payload.ConversationID,
	})
	if err != nil {
		return fmt.Errorf("failed to render notification: %v: %w", err, asynq.SkipRetry)
	}
	subject := email.SubjectPrefixNewEnquiry + ": " + topic

	queued := 0
	for _, member := range staff {
		if member.Email == "" {
			continue
		}
		data, err := json.Marshal(EmailTaskPayload{To: member.Email, Subject: subject, Body: body.String()})
		if err != nil {
			return fmt.Errorf("failed to marshal email payload: %w", err)
		}
		if _, err := p.taskClient.EnqueueContext(ctx, asynq.NewTask(TypeEmailDelivery, data), asynq.Queue(queueCritical)); err != nil {
			return fmt.Errorf("failed to enqueue email to %s: %w", member.Email, err)
		}
		queued++
	}

	p.log.Info("enquiry notification fanned out",
		zap.String("conversation_id", payload.ConversationID),
		zap.Int("emails", queued))
	return nil
}

// EmailTaskPayload is one rendered plain-text email.
type EmailTaskPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("email task has no recipient: %w", asynq.SkipRetry)
	}

	fromAddress := p.cfg.SmtpFromAddress
	if fromAddress == "" {
		fromAddress = "noreply@example.com"
	}
	raw := email.BuildPlainMessage(fromAddress, []string{payload.To}, payload.Subject, payload.Body, p.now())

	if err := p.emailSender.Send(ctx, []string{payload.To}, payload.Subject, raw); err != nil {
		return fmt.Errorf("email delivery to %s failed: %w", payload.To, err)
	}
	p.log.Debug("email delivered", zap.String("to", payload.To), zap.String("subject", payload.Subject))
	return nil
}
