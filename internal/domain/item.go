package domain

import "time"

// Категории писем, которые понимает детерминированный классификатор.
type MailCategory string

const (
	CategoryNewsletter   MailCategory = "newsletter"
	CategoryNotification MailCategory = "notification"
	CategorySpamLike     MailCategory = "spam_like"
	CategoryPersonal     MailCategory = "personal"
	CategoryFinancial    MailCategory = "financial"
	CategoryUnknown      MailCategory = ""
)

// MailItem — одно письмо из очереди на разбор. Для ядра это непрозрачный
// work item: содержимое трогает только пайплайн решений и исполнитель.
type MailItem struct {
	ID         string            `json:"id"`
	From       string            `json:"from"`
	Subject    string            `json:"subject"`
	Snippet    string            `json:"snippet"`
	Category   MailCategory      `json:"category,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}
