package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tugas-bot/internal/domain"
	"tugas-bot/internal/infra/metrics"
)

// Orchestrator ведёт цепочку звеньев извлечения до первого валидного ответа.
// Каждое звено получает одинаковый контракт, различия — только в цене,
// задержке и модальности.
type Orchestrator struct {
	providers      []domain.ExtractionProvider
	attemptTimeout time.Duration
	logger         zerolog.Logger
}

// NewOrchestrator создаёт оркестратор. Порядок providers — приоритет
// для текстовых сообщений; при изображении мультимодальные звенья
// выдвигаются вперёд.
func NewOrchestrator(providers []domain.ExtractionProvider, attemptTimeout time.Duration, logger zerolog.Logger) *Orchestrator {
	if attemptTimeout <= 0 {
		attemptTimeout = 25 * time.Second
	}
	return &Orchestrator{providers: providers, attemptTimeout: attemptTimeout, logger: logger}
}

// Extract перебирает цепочку: транспортный сбой, мусор вместо JSON и
// нарушение схемы равнозначны — следующая попытка. Останавливается на
// первом schema-валидном результате; семантику чинят дедупликация и
// уточнение ниже по конвейеру.
func (o *Orchestrator) Extract(ctx context.Context, in domain.ExtractionInput) (domain.ExtractionOutcome, error) {
	chain := o.orderFor(in)
	if len(chain) == 0 {
		return domain.ExtractionOutcome{}, domain.ErrTerminalExtraction
	}

	var lastErr error
	for _, provider := range chain {
		outcome, err := o.attempt(ctx, provider, in)
		metrics.ObserveExtractionAttempt(provider.Name(), err)
		if err == nil {
			return outcome, nil
		}
		if !domain.AdvancesChain(err) {
			return domain.ExtractionOutcome{}, err
		}
		o.logger.Warn().Err(err).Str("provider", provider.Name()).Msg("ingest: звено цепочки не справилось")
		lastErr = err
	}

	metrics.ExtractionTerminalFailures.Inc()
	return domain.ExtractionOutcome{}, fmt.Errorf("%w: последняя ошибка: %v", domain.ErrTerminalExtraction, lastErr)
}

func (o *Orchestrator) attempt(ctx context.Context, provider domain.ExtractionProvider, in domain.ExtractionInput) (domain.ExtractionOutcome, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	defer cancel()
	return provider.Extract(attemptCtx, in)
}

// orderFor выбирает состав и порядок цепочки под форму входа: при
// изображении мультимодальные звенья идут первыми, текстовые остаются
// запасными; без изображения мультимодальные звенья пропускаются.
func (o *Orchestrator) orderFor(in domain.ExtractionInput) []domain.ExtractionProvider {
	if in.ImageBase64 == "" {
		out := make([]domain.ExtractionProvider, 0, len(o.providers))
		for _, p := range o.providers {
			if !p.SupportsImage() {
				out = append(out, p)
			}
		}
		return out
	}
	out := make([]domain.ExtractionProvider, 0, len(o.providers))
	for _, p := range o.providers {
		if p.SupportsImage() {
			out = append(out, p)
		}
	}
	for _, p := range o.providers {
		if !p.SupportsImage() {
			out = append(out, p)
		}
	}
	return out
}
