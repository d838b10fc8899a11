package rag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eldtechnologies/pricechat/internal/intent"
	"github.com/eldtechnologies/pricechat/internal/llm"
	"github.com/eldtechnologies/pricechat/internal/models"
	"github.com/eldtechnologies/pricechat/internal/textutil"
)

// historyTurns is how many prior messages the model sees.
const historyTurns = 6

const systemPrompt = "Bạn là trợ lý chatbot thông minh cho website so sánh giá điện thoại ở Việt Nam. " +
	"Hãy trả lời ngắn gọn và đầy đủ thông tin cho yêu cầu của người dùng. " +
	"Chỉ dùng thông tin sản phẩm được cung cấp, không bịa ra giá hoặc thông số. " +
	"Trả lời bằng tiếng Việt, ngắn gọn và thân thiện."

// Canned replies used when the pipeline degrades.
const (
	apologyText   = "Xin lỗi, tôi không thể xử lý yêu cầu của bạn lúc này. Vui lòng thử lại sau."
	notFoundText  = "Xin lỗi, tôi không tìm thấy sản phẩm \"%s\". Bạn có thể thử tìm theo tên máy hoặc thương hiệu khác."
	noResultsText = "Xin lỗi, tôi không tìm thấy sản phẩm phù hợp với yêu cầu của bạn. " +
		"Bạn có thể thử mở rộng khoảng giá hoặc chọn thương hiệu khác."
	unresolvedText = "Tôi cần ít nhất hai sản phẩm để so sánh nhưng không tìm thấy: %s. " +
		"Bạn có thể kiểm tra lại tên sản phẩm không?"
	guideText = "Bạn có thể tìm điện thoại bằng cách hỏi về tên model cụ thể (ví dụ: \"iPhone 15 Pro\"), " +
		"thương hiệu (\"điện thoại Samsung\"), khoảng giá (\"điện thoại dưới 8 triệu\") " +
		"hoặc nhu cầu sử dụng (\"điện thoại chơi game tốt\")."
)

const (
	listInstruction = `Hãy trả lời để giới thiệu danh sách sản phẩm phù hợp với yêu cầu.
Chỉ trả lời một đoạn văn ngắn gọn, không quá 3-4 câu.
Không liệt kê tất cả sản phẩm, chỉ nêu các sản phẩm nổi bật nhất (tối đa 3 sản phẩm).
Nêu rõ khoảng giá (từ thấp nhất đến cao nhất) và các thương hiệu có trong kết quả.
Nói với người dùng rằng họ có thể xem chi tiết danh sách sản phẩm ở trên màn hình.`

	detailInstruction = `Hãy tóm tắt thông tin sản phẩm một cách ngắn gọn (không quá 3-4 câu).
Tập trung vào các điểm mạnh và đặc điểm nổi bật.
Nêu giá rõ ràng.
Nói với người dùng rằng họ có thể xem chi tiết đầy đủ trên màn hình.`

	compareInstruction = `Hãy so sánh các sản phẩm một cách khách quan.
Nêu ra điểm mạnh, điểm yếu của mỗi sản phẩm và những điểm khác biệt chính.
Trình bày ngắn gọn không quá 5-6 câu.
Đề xuất nên chọn sản phẩm nào dựa trên giá-hiệu năng và nhu cầu phổ biến.
Nói với người dùng rằng họ có thể xem bảng so sánh chi tiết trên màn hình.`

	chatInstruction = `Hãy trả lời câu hỏi hoặc yêu cầu của người dùng trong không quá 3-4 câu.
Nếu họ đang tìm kiếm thông tin về sản phẩm, giới thiệu họ có thể tìm kiếm điện thoại bằng cách hỏi về:
1. Tên model cụ thể (ví dụ: "iPhone 15 Pro")
2. Thương hiệu (ví dụ: "Điện thoại Samsung")
3. Khoảng giá (ví dụ: "Điện thoại dưới 8 triệu")
4. Nhu cầu sử dụng (ví dụ: "Điện thoại chơi game tốt")`
)

// buildRequest assembles the completion request for a grounded turn.
func buildRequest(history []models.Message, message string, kind intent.Kind, grounding string) llm.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Yêu cầu hiện tại của người dùng: %q\n\n", message)

	instruction := chatInstruction
	switch kind {
	case intent.KindSearch:
		b.WriteString("Danh sách sản phẩm:\n")
		instruction = listInstruction
	case intent.KindDetail:
		b.WriteString("Thông tin chi tiết sản phẩm:\n")
		instruction = detailInstruction
	case intent.KindCompare:
		b.WriteString("Thông tin các sản phẩm so sánh:\n")
		instruction = compareInstruction
	}
	if grounding != "" {
		b.WriteString(grounding)
		b.WriteString("\n\n")
	}
	b.WriteString(instruction)

	return llm.Request{
		System:  systemPrompt,
		History: turns(history),
		Prompt:  b.String(),
	}
}

func turns(history []models.Message) []llm.Turn {
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	out := make([]llm.Turn, 0, len(history))
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == models.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Turn{Role: role, Content: m.Content})
	}
	return out
}

// formatRefs lists search results as one compact fact line each.
func formatRefs(refs []models.ProductRef) string {
	lines := make([]string, len(refs))
	for i, r := range refs {
		lines[i] = fmt.Sprintf("%d. %s (%s): %s", i+1, r.Name, brandOrUnknown(r.Brand), priceRange(r.MinPrice, r.MaxPrice))
	}
	return strings.Join(lines, "\n")
}

// formatProduct lists everything known about a product.
func formatProduct(p models.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tên: %s\n", p.Name)
	fmt.Fprintf(&b, "Thương hiệu: %s\n", brandOrUnknown(p.Brand))
	if p.Model != "" {
		fmt.Fprintf(&b, "Model: %s\n", p.Model)
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "Mô tả: %s\n", p.Description)
	}
	fmt.Fprintf(&b, "Giá: %s\n", priceRange(p.MinPrice(), p.MaxPrice()))
	fmt.Fprintf(&b, "Thông số kỹ thuật: %s", formatSpecs(p.Specifications))
	if len(p.Sources) > 0 {
		b.WriteString("\nNơi bán:")
		for _, s := range p.Sources {
			stock := "còn hàng"
			if !s.InStock {
				stock = "hết hàng"
			}
			fmt.Fprintf(&b, "\n- %s: %s VND (%s)", s.Name, textutil.FormatVND(s.Price), stock)
		}
	}
	return b.String()
}

// formatSpecs renders specifications in key order, skipping "additional_" keys.
func formatSpecs(specs map[string]models.SpecValue) string {
	keys := make([]string, 0, len(specs))
	for k, v := range specs {
		if strings.HasPrefix(k, "additional_") || v.String() == "" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return "Chưa có thông tin chi tiết."
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + specs[k].String()
	}
	return strings.Join(parts, ", ")
}

func formatProducts(products []models.Product) string {
	parts := make([]string, len(products))
	for i, p := range products {
		parts[i] = formatProduct(p)
	}
	return strings.Join(parts, "\n---\n")
}

func priceRange(lo, hi *float64) string {
	switch {
	case lo == nil || hi == nil:
		return "chưa có giá"
	case *lo == *hi:
		return textutil.FormatVND(*lo) + " VND"
	default:
		return textutil.FormatVND(*lo) + " - " + textutil.FormatVND(*hi) + " VND"
	}
}

func brandOrUnknown(brand string) string {
	if brand == "" {
		return "không rõ"
	}
	return brand
}
