// Package rag runs the chat pipeline: classify, retrieve, ground, generate, package.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/pricechat/internal/intent"
	"github.com/eldtechnologies/pricechat/internal/llm"
	"github.com/eldtechnologies/pricechat/internal/metrics"
	"github.com/eldtechnologies/pricechat/internal/models"
	"github.com/eldtechnologies/pricechat/internal/retrieval"
	"github.com/eldtechnologies/pricechat/internal/textutil"
)

// Reply is the assistant's answer to one turn.
type Reply struct {
	Content string
	Type    models.ResponseType
	Data    any // payload matching Type, nil for text
}

// Message turns the reply into an assistant message.
func (r Reply) Message() models.Message {
	return models.NewMessage(models.RoleAssistant, r.Content, r.Type, r.Data)
}

// Retriever fetches product data for an intent. *retrieval.Gateway implements it.
type Retriever interface {
	Retrieve(ctx context.Context, in intent.Intent) (retrieval.Result, error)
}

// Orchestrator answers chat messages grounded on retrieved product data.
type Orchestrator struct {
	resolver   intent.Resolver
	retriever  Retriever
	model      llm.Client
	llmTimeout time.Duration
	logger     zerolog.Logger
}

// New creates an orchestrator. A nil model makes replies template-based.
func New(resolver intent.Resolver, retriever Retriever, model llm.Client, llmTimeout time.Duration, logger zerolog.Logger) *Orchestrator {
	if llmTimeout <= 0 {
		llmTimeout = 20 * time.Second
	}
	return &Orchestrator{
		resolver:   resolver,
		retriever:  retriever,
		model:      model,
		llmTimeout: llmTimeout,
		logger:     logger,
	}
}

// Answer produces the reply to message given the prior history of the session.
// It never fails: every error degrades to a text reply.
func (o *Orchestrator) Answer(ctx context.Context, history []models.Message, message string) (reply Reply) {
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error().Interface("panic", rec).Msg("Chat pipeline panicked")
			reply = o.degrade("panic", apologyText)
		}
	}()

	in := o.resolver.Resolve(ctx, history, message)
	logger := o.logger.With().Str("intent", string(in.Kind)).Logger()

	if in.Kind == intent.KindChat {
		if in.Canned != "" {
			return Reply{Content: in.Canned, Type: models.TypeText}
		}
		return o.generate(ctx, logger, history, message, in, "", nil)
	}

	res, err := o.retriever.Retrieve(ctx, in)

	switch in.Kind {
	case intent.KindDetail:
		if errors.Is(err, models.ErrNotFound) {
			return o.degrade("not_found", fmt.Sprintf(notFoundText, in.ProductID))
		}
		if err != nil || len(res.Products) == 0 {
			logger.Warn().Err(err).Str("product_id", in.ProductID).Msg("Detail retrieval failed")
			return o.degrade("backend", apologyText)
		}
		p := res.Products[0]
		return o.generate(ctx, logger, history, message, in, formatProduct(p), models.ProductDetailData{Product: p})

	case intent.KindCompare:
		if err != nil {
			logger.Warn().Err(err).Strs("product_ids", in.ProductIDs).Msg("Compare retrieval failed")
			return o.degrade("no_results", noResultsText)
		}
		if len(res.Products) < 2 {
			return o.degrade("unresolved", fmt.Sprintf(unresolvedText, strings.Join(res.Unresolved, ", ")))
		}
		data := models.ProductComparisonData{Products: res.Products, Unresolved: res.Unresolved}
		return o.generate(ctx, logger, history, message, in, formatProducts(res.Products), data)

	default:
		if err != nil {
			logger.Warn().Err(err).Str("keywords", in.Keywords).Msg("Search retrieval failed")
		}
		if err != nil || len(res.Candidates) == 0 {
			return o.degrade("no_results", noResultsText)
		}
		refs := res.Refs()
		return o.generate(ctx, logger, history, message, in, formatRefs(refs), models.ProductListData{Products: refs})
	}
}

// generate asks the model for the reply text and packages it with data.
func (o *Orchestrator) generate(ctx context.Context, logger zerolog.Logger, history []models.Message, message string, in intent.Intent, grounding string, data any) Reply {
	typ := in.ResponseType()

	if o.model == nil {
		return Reply{Content: template(data), Type: typ, Data: data}
	}

	ctx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	defer cancel()

	start := time.Now()
	text, err := o.model.Complete(ctx, buildRequest(history, message, in.Kind, grounding))
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.LLMLatency.WithLabelValues(o.model.Name(), outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Warn().Err(err).Str("provider", o.model.Name()).Msg("Model call failed")
		return o.degrade("llm", apologyText)
	}
	return Reply{Content: text, Type: typ, Data: data}
}

func (o *Orchestrator) degrade(reason, text string) Reply {
	metrics.DegradedReplies.WithLabelValues(reason).Inc()
	return Reply{Content: text, Type: models.TypeText}
}

// template writes a reply without a model, from the packaged data alone.
func template(data any) string {
	switch d := data.(type) {
	case models.ProductListData:
		var lo, hi *float64
		var brands []string
		seen := make(map[string]bool)
		for _, r := range d.Products {
			if r.MinPrice != nil && (lo == nil || *r.MinPrice < *lo) {
				lo = r.MinPrice
			}
			if r.MaxPrice != nil && (hi == nil || *r.MaxPrice > *hi) {
				hi = r.MaxPrice
			}
			if r.Brand != "" && !seen[r.Brand] {
				seen[r.Brand] = true
				brands = append(brands, r.Brand)
			}
		}
		text := fmt.Sprintf("Tôi tìm thấy %d sản phẩm phù hợp", len(d.Products))
		if lo != nil && hi != nil {
			text += fmt.Sprintf(", giá từ %s đến %s VND", textutil.FormatVND(*lo), textutil.FormatVND(*hi))
		}
		if len(brands) > 0 {
			text += ", thương hiệu " + strings.Join(brands, ", ")
		}
		return text + ". Bạn có thể xem chi tiết danh sách sản phẩm ở trên màn hình."

	case models.ProductDetailData:
		return fmt.Sprintf("%s của %s có giá %s. Bạn có thể xem chi tiết đầy đủ trên màn hình.",
			d.Product.Name, brandOrUnknown(d.Product.Brand), priceRange(d.Product.MinPrice(), d.Product.MaxPrice()))

	case models.ProductComparisonData:
		names := make([]string, len(d.Products))
		for i, p := range d.Products {
			names[i] = fmt.Sprintf("%s (%s)", p.Name, priceRange(p.MinPrice(), p.MaxPrice()))
		}
		return "So sánh " + strings.Join(names, " và ") + ". Bạn có thể xem bảng so sánh chi tiết trên màn hình."

	default:
		return guideText
	}
}
