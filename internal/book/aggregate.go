// Package book строит агрегированный стакан по отдельным заявкам кредиторов
// и заёмщиков.
package book

import (
	"sort"
	"strconv"

	"github.com/mmeshcher/denver-lending-system/internal/model"
)

// Aggregate формирует стакан из активных заявок. Функция чистая и
// детерминированная: повторный вызов на неизменном наборе заявок даёт
// побайтно идентичный результат.
//
// Заявки с нулевым остатком и отменённые исключаются. Ярусы группируются по
// паре (ставка, срок); bid-ярусы сортируются по убыванию ставки (лучший bid —
// наивысшая ставка, ещё приемлемая для кредитора), ask-ярусы — по возрастанию
// (лучший ask — наинизшая ставка, требуемая заёмщиком). Spread = лучшая
// ask-ставка − лучшая bid-ставка; при пустой стороне спред отсутствует.
func Aggregate(bids, asks []model.Order) model.OrderBook {
	bidTiers := buildTiers(bids)
	askTiers := buildTiers(asks)

	sortTiers(bidTiers, true)
	sortTiers(askTiers, false)

	ob := model.OrderBook{BidTiers: bidTiers, AskTiers: askTiers}
	if len(bidTiers) > 0 && len(askTiers) > 0 {
		spread := askTiers[0].Rate.Sub(bidTiers[0].Rate)
		ob.Spread = &spread
	}
	return ob
}

// buildTiers группирует заявки по (ставка, срок), суммируя остатки и считая
// количество заявок в ярусе. Порядок появления ярусов определяется порядком
// заявок во входном срезе, итоговый порядок задаёт sortTiers.
func buildTiers(orders []model.Order) []model.OrderBookTier {
	index := make(map[string]int, len(orders))
	tiers := make([]model.OrderBookTier, 0, len(orders))

	for _, o := range orders {
		if o.Cancelled || o.RemainingAmount.Sign() <= 0 {
			continue
		}

		key := o.Rate.String() + ":" + strconv.Itoa(o.Duration)
		if i, ok := index[key]; ok {
			tiers[i].TotalAmount = tiers[i].TotalAmount.Add(o.RemainingAmount)
			tiers[i].OrderCount++
			continue
		}

		index[key] = len(tiers)
		tiers = append(tiers, model.OrderBookTier{
			Rate:        o.Rate,
			Duration:    o.Duration,
			TotalAmount: o.RemainingAmount,
			OrderCount:  1,
		})
	}

	return tiers
}

func sortTiers(tiers []model.OrderBookTier, descending bool) {
	sort.SliceStable(tiers, func(i, j int) bool {
		if c := tiers[i].Rate.Cmp(tiers[j].Rate); c != 0 {
			if descending {
				return c > 0
			}
			return c < 0
		}
		return tiers[i].Duration < tiers[j].Duration
	})
}
