package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/pricechat/internal/llm"
	"github.com/eldtechnologies/pricechat/internal/models"
	"github.com/eldtechnologies/pricechat/internal/textutil"
)

const reflectionPrompt = `Hãy phân tích tin nhắn này từ người dùng và lịch sử chat để xác định hành động tiếp theo.

Tin nhắn: %s

Lịch sử chat:
%s

Hãy phân loại tin nhắn này vào một trong các hành động sau:
1. product_list: Người dùng đang tìm kiếm danh sách sản phẩm
2. product_detail: Người dùng đang yêu cầu thông tin chi tiết về một sản phẩm cụ thể
3. product_comparison: Người dùng muốn so sánh các sản phẩm
4. answer: Trả lời câu hỏi thông thường

Chỉ trả về JSON theo định dạng sau:
{"action": "action_name", "query": "truy vấn tìm kiếm", "additional_info": {}}

Đối với product_list, additional_info gồm price_min, price_max (VND) và brands nếu có.
Đối với product_detail, additional_info gồm product_id hoặc product_name.
Đối với product_comparison, additional_info gồm product_ids hoặc product_names.`

// reflection is the model's classification of a message.
type reflection struct {
	Action         string `json:"action"`
	Query          string `json:"query"`
	AdditionalInfo struct {
		PriceMin     any      `json:"price_min"`
		PriceMax     any      `json:"price_max"`
		Brands       []string `json:"brands"`
		ProductID    string   `json:"product_id"`
		ProductName  string   `json:"product_name"`
		ProductIDs   []string `json:"product_ids"`
		ProductNames []string `json:"product_names"`
	} `json:"additional_info"`
}

// LLM asks a language model to classify messages and falls back to the
// rules resolver when the model fails or answers with something unusable.
type LLM struct {
	client  llm.Client
	rules   *Rules
	timeout time.Duration
	logger  zerolog.Logger
}

// NewLLM creates a model-backed resolver.
func NewLLM(client llm.Client, rules *Rules, timeout time.Duration, logger zerolog.Logger) *LLM {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LLM{client: client, rules: rules, timeout: timeout, logger: logger}
}

// Resolve classifies message, never failing.
func (l *LLM) Resolve(ctx context.Context, history []models.Message, message string) Intent {
	text := strings.TrimSpace(message)
	if text == "" || l.client == nil {
		return l.rules.Resolve(ctx, history, message)
	}

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	answer, err := l.client.Complete(callCtx, llm.Request{
		Prompt:      fmt.Sprintf(reflectionPrompt, text, formatHistory(history)),
		Temperature: 0.1,
		MaxTokens:   512,
	})
	if err != nil {
		l.logger.Warn().Err(err).Msg("Intent model call failed, using rules")
		return l.rules.Resolve(ctx, history, message)
	}

	raw, ok := llm.ExtractJSON(answer)
	var r reflection
	if ok {
		err = json.Unmarshal([]byte(raw), &r)
	}
	if !ok || err != nil {
		l.logger.Warn().Str("answer", truncate(answer, 200)).Msg("Unparseable intent answer, using rules")
		return l.rules.Resolve(ctx, history, message)
	}

	if in, ok := l.toIntent(ctx, r, text); ok {
		return in
	}
	return l.rules.Resolve(ctx, history, message)
}

func (l *LLM) toIntent(ctx context.Context, r reflection, text string) (Intent, bool) {
	info := r.AdditionalInfo
	idx := l.rules.names.index(ctx)

	switch r.Action {
	case "product_list":
		query := r.Query
		if query == "" {
			query = text
		}
		var f models.Filters
		f.MinPrice = toPrice(info.PriceMin)
		f.MaxPrice = toPrice(info.PriceMax)
		for _, b := range info.Brands {
			if strings.TrimSpace(b) != "" {
				f.Brands = append(f.Brands, textutil.NormalizeBrand(b))
			}
		}
		return Search(query, f), true

	case "product_detail":
		if info.ProductID != "" {
			return Detail(info.ProductID), true
		}
		for _, name := range []string{info.ProductName, r.Query} {
			if m := idx.find(textutil.Words(name)); len(m) > 0 {
				return Detail(m[0].id), true
			}
		}
		if info.ProductName != "" {
			return Search(info.ProductName, models.Filters{}), true
		}

	case "product_comparison":
		ids := append([]string{}, info.ProductIDs...)
		for _, name := range info.ProductNames {
			if m := idx.find(textutil.Words(name)); len(m) > 0 {
				ids = append(ids, m[0].id)
			} else if id := rawID(textutil.Words(name)); id != "" {
				ids = append(ids, id)
			}
		}
		if in := Compare(ids...); len(in.ProductIDs) >= 2 {
			return in, true
		}

	case "answer":
		return Chat(""), true
	}
	return Intent{}, false
}

// toPrice reads a VND amount the model wrote as a number or a string like "8 triệu".
func toPrice(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		filters, _ := parsePrices("dưới " + x)
		if filters.MaxPrice == nil {
			n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil
			}
			f = n
		} else {
			f = *filters.MaxPrice
		}
	default:
		return nil
	}
	if f <= 0 {
		return nil
	}
	if f < 1_000 {
		f *= 1_000_000
	}
	return &f
}

func formatHistory(history []models.Message) string {
	if len(history) > 6 {
		history = history[len(history)-6:]
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		role := "Người dùng"
		if m.Role == models.RoleAssistant {
			role = "Trợ lý"
		}
		lines = append(lines, role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
