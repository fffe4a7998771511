// Package gmail reads Amazon invoice mail from a Google Workspace mailbox.
//
// The client authenticates with a service account that has domain-wide delegation and
// impersonates the mailbox owner, so no interactive OAuth consent is needed.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"faimport/internal/logger"
)

// DefaultMaxResults caps a listing when the caller passes no limit.
const DefaultMaxResults = 50

var (
	ErrMissingCredentials = errors.New("missing Gmail service account credentials")
	ErrMissingUser        = errors.New("missing Gmail user to impersonate")
)

// MessageRef identifies a message returned by a search.
type MessageRef struct {
	ID       string
	ThreadID string
}

// Attachment is a decoded message attachment.
type Attachment struct {
	Filename string
	MimeType string
	Data     []byte
}

// IsPDF reports whether the attachment looks like a PDF document.
func (a Attachment) IsPDF() bool {
	return a.MimeType == "application/pdf" || strings.HasSuffix(strings.ToLower(a.Filename), ".pdf")
}

// Message is the content of one mail.
type Message struct {
	ID          string
	ThreadID    string
	Subject     string
	From        string
	Date        time.Time
	Body        string // text/plain part, or text/html with tags removed
	Attachments []Attachment
}

// Client wraps the Gmail API for a single mailbox.
type Client struct {
	svc  *gm.Service
	user string
	log  zerolog.Logger
}

// NewClient reads a service account key and impersonates user with read-only scope.
func NewClient(ctx context.Context, credentialsFile, user string) (*Client, error) {
	const op = "NewClient"

	if credentialsFile == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingCredentials)
	}
	if user == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingUser)
	}

	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read credentials file: %w", op, err)
	}

	config, err := google.JWTConfigFromJSON(creds, gm.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}
	config.Subject = user

	svc, err := gm.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create gmail service: %w", op, err)
	}
	return NewClientWithService(svc, user), nil
}

// NewClientWithService creates a client around an existing service (for testing).
func NewClientWithService(svc *gm.Service, user string) *Client {
	return &Client{
		svc:  svc,
		user: user,
		log:  logger.WithComponent("gmail"),
	}
}

// ListMessages pages through search results until limit messages are collected.
func (c *Client) ListMessages(ctx context.Context, query string, limit int64) ([]MessageRef, error) {
	const op = "ListMessages"

	if limit <= 0 {
		limit = DefaultMaxResults
	}

	var (
		refs      []MessageRef
		pageToken string
	)
	for {
		call := c.svc.Users.Messages.List(c.user).Q(query).MaxResults(limit - int64(len(refs))).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		for _, m := range resp.Messages {
			refs = append(refs, MessageRef{ID: m.Id, ThreadID: m.ThreadId})
			if int64(len(refs)) >= limit {
				break
			}
		}
		if resp.NextPageToken == "" || int64(len(refs)) >= limit {
			break
		}
		pageToken = resp.NextPageToken
	}

	c.log.Debug().Str("query", query).Int("messages", len(refs)).Msg("Listed messages")
	return refs, nil
}

// GetMessageContent fetches a message with its body and every attachment.
func (c *Client) GetMessageContent(ctx context.Context, id string) (*Message, error) {
	const op = "GetMessageContent"

	raw, err := c.svc.Users.Messages.Get(c.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, id, err)
	}

	msg := &Message{ID: raw.Id, ThreadID: raw.ThreadId}
	if raw.InternalDate > 0 {
		msg.Date = time.UnixMilli(raw.InternalDate).UTC()
	}
	if raw.Payload == nil {
		return msg, nil
	}
	for _, h := range raw.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			msg.Subject = h.Value
		case "from":
			msg.From = h.Value
		}
	}

	var plain, htmlBody string
	if err := c.walkParts(ctx, id, raw.Payload, msg, &plain, &htmlBody); err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, id, err)
	}
	msg.Body = plain
	if msg.Body == "" && htmlBody != "" {
		msg.Body = htmlToText(htmlBody)
	}
	return msg, nil
}

func (c *Client) walkParts(ctx context.Context, msgID string, part *gm.MessagePart, msg *Message, plain, htmlBody *string) error {
	if part.Filename != "" && part.Body != nil {
		data, err := c.attachmentData(ctx, msgID, part.Body)
		if err != nil {
			return fmt.Errorf("attachment %s: %w", part.Filename, err)
		}
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename: part.Filename,
			MimeType: part.MimeType,
			Data:     data,
		})
		return nil
	}

	if part.Body != nil && part.Body.Data != "" {
		data, err := decode(part.Body.Data)
		if err != nil {
			return err
		}
		switch {
		case strings.HasPrefix(part.MimeType, "text/plain") && *plain == "":
			*plain = string(data)
		case strings.HasPrefix(part.MimeType, "text/html") && *htmlBody == "":
			*htmlBody = string(data)
		}
	}

	for _, p := range part.Parts {
		if err := c.walkParts(ctx, msgID, p, msg, plain, htmlBody); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) attachmentData(ctx context.Context, msgID string, body *gm.MessagePartBody) ([]byte, error) {
	if body.Data != "" {
		return decode(body.Data)
	}
	if body.AttachmentId == "" {
		return nil, nil
	}
	att, err := c.svc.Users.Messages.Attachments.Get(c.user, msgID, body.AttachmentId).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return decode(att.Data)
}

// decode accepts padded and unpadded base64url.
func decode(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}

var (
	reBlockTags = regexp.MustCompile(`(?i)<(br|/p|/div|/tr|/li|/h[1-6])[^>]*>`)
	reTags      = regexp.MustCompile(`(?s)<[^>]*>`)
	reStyle     = regexp.MustCompile(`(?is)<(style|script)[^>]*>.*?</(style|script)>`)
	reBlankRuns = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
)

// htmlToText keeps line structure so the line based invoice parser still works.
func htmlToText(s string) string {
	s = reStyle.ReplaceAllString(s, "")
	s = reBlockTags.ReplaceAllString(s, "\n")
	s = reTags.ReplaceAllString(s, "")
	s = strings.ReplaceAll(html.UnescapeString(s), "\u00a0", " ")
	s = reBlankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
