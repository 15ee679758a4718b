package responder

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/jsonschema"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"

	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
)

// sessionView is the session state shown to the model.
type sessionView struct {
	Step             draft.Step          `json:"step" jsonschema:"description=Pasul curent al conversatiei"`
	ClientType       draft.ClientType    `json:"clientType,omitempty" jsonschema:"description=company sau individual"`
	ClientIdentifier string              `json:"clientIdentifier,omitempty" jsonschema:"description=CUI-ul clientului"`
	Products         []draft.ProductLine `json:"products" jsonschema:"description=Produsele deja adaugate pe factura"`
	HasClient        bool                `json:"hasClient" jsonschema:"description=Clientul a fost confirmat"`
	ProductsCount    int                 `json:"productsCount"`
}

var (
	viewSchemaOnce sync.Once
	viewSchema     string
)

func sessionViewSchema() string {
	viewSchemaOnce.Do(func() {
		s := jsonschema.Reflect(&sessionView{})
		s.Title = "Starea sesiunii"
		encoded, err := sonic.MarshalString(s)
		if err != nil {
			return
		}
		viewSchema = encoded
	})
	return viewSchema
}

func newSessionView(session draft.Session) sessionView {
	products := session.Products
	if products == nil {
		products = []draft.ProductLine{}
	}
	return sessionView{
		Step:             session.CurrentStep,
		ClientType:       session.ClientType,
		ClientIdentifier: session.ClientIdentifier,
		Products:         products,
		HasClient:        session.HasClient(),
		ProductsCount:    len(products),
	}
}

// BuildSystemPrompt describes the assistant, the session state and the
// message the reply has to carry.
func BuildSystemPrompt(turn Turn, planned Result) string {
	var b strings.Builder
	b.WriteString("Ești asistentul care ajută utilizatorul să emită o factură printr-o conversație. ")
	b.WriteString("Răspunzi doar în limba română, scurt și politicos.\n")

	if tone := strings.TrimSpace(turn.Channel.Tone); tone != "" {
		fmt.Fprintf(&b, "Ton: %s\n", tone)
	}
	if hint := strings.TrimSpace(turn.Channel.PromptHint); hint != "" {
		fmt.Fprintf(&b, "Canal: %s\n", hint)
	}

	if state, err := sonic.MarshalString(newSessionView(turn.Session)); err == nil {
		b.WriteString("\n# Starea sesiunii\n")
		b.WriteString(state)
		b.WriteString("\n")
	}
	if schemaText := sessionViewSchema(); schemaText != "" {
		b.WriteString("\n# Schema stării\n")
		b.WriteString(schemaText)
		b.WriteString("\n")
	}
	if table := productsTable(turn.Session.Products); table != "" {
		b.WriteString("\n# Produse adăugate\n")
		b.WriteString(table)
	}

	b.WriteString("\n# Ce urmează\n")
	fmt.Fprintf(&b, "Pasul următor este `%s`. Răspunsul tău trebuie să transmită același lucru ca mesajul:\n%q\n", planned.NextStep, planned.ReplyText)
	b.WriteString("\nReguli:\n")
	b.WriteString("- Nu inventa date despre client sau produse.\n")
	b.WriteString("- Pune o singură întrebare, cea de mai sus.\n")
	if turn.Channel.MaxReplyLen > 0 {
		fmt.Fprintf(&b, "- Cel mult %d de caractere.\n", turn.Channel.MaxReplyLen)
	}
	return b.String()
}

func productsTable(products []draft.ProductLine) string {
	if len(products) == 0 {
		return ""
	}
	var buf strings.Builder
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Produs", "UM", "Cantitate", "Preț", "TVA %")
	for _, p := range products {
		_ = table.Append(p.Name, p.Unit, formatQuantity(p.Quantity), formatAmount(p.Price), formatQuantity(p.VATPercent))
	}
	_ = table.Render()
	return buf.String()
}

// buildHistoryMessages keeps the last limit messages and appends the current
// user text.
func buildHistoryMessages(messages []draft.Message, limit int, text string) []*schema.Message {
	if limit <= 0 {
		limit = 10
	}
	startIdx := 0
	if len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx+1)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case draft.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case draft.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return append(history, schema.UserMessage(text))
}
