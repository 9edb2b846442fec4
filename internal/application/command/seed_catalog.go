package command

import (
	"context"

	"github.com/superheroes-club/luz-engine/internal/domain/reward"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEED CATALOG COMMAND
// ══════════════════════════════════════════════════════════════════════════════

func stock(n int) *int { return &n }

// DefaultCatalog returns the rank badges and the launch rewards.
func DefaultCatalog() []reward.Reward {
	return []reward.Reward{
		{Code: "INICIADO", Kind: reward.KindBadge, Rarity: reward.RarityCommon,
			NameES: "Iniciado", NameEN: "Initiate",
			DescriptionES: "Completaste tu iniciación como superhéroe", DescriptionEN: "You completed your superhero initiation"},
		{Code: "VALIENTE", Kind: reward.KindBadge, Rarity: reward.RarityRare,
			NameES: "Valiente", NameEN: "Brave",
			DescriptionES: "10 retos completados", DescriptionEN: "10 challenges completed"},
		{Code: "SABIO", Kind: reward.KindBadge, Rarity: reward.RarityEpic,
			NameES: "Sabio", NameEN: "Wise",
			DescriptionES: "25 retos completados", DescriptionEN: "25 challenges completed"},
		{Code: "MAESTRO", Kind: reward.KindBadge, Rarity: reward.RarityLegendary,
			NameES: "Maestro", NameEN: "Master",
			DescriptionES: "50 retos y 2500 puntos Luz", DescriptionEN: "50 challenges and 2500 Luz points"},
		{Code: "CARTA_SUPERHEROE", Kind: reward.KindPhysical, Rarity: reward.RarityCommon, Cost: 100, Redeemable: true, RemainingStock: stock(1000),
			NameES: "Carta de Superhéroe", NameEN: "Superhero Card",
			DescriptionES: "Una carta física firmada por tu Arcángel", DescriptionEN: "A physical card signed by your Archangel"},
		{Code: "PULSERA_LUZ", Kind: reward.KindPhysical, Rarity: reward.RarityRare, Cost: 250, Redeemable: true, RemainingStock: stock(500),
			NameES: "Pulsera de Luz", NameEN: "Light Bracelet",
			DescriptionES: "Pulsera oficial del Club", DescriptionEN: "Official Club bracelet"},
		{Code: "DIPLOMA_MAESTRO", Kind: reward.KindPhysical, Rarity: reward.RarityEpic, Cost: 500, Redeemable: true, RemainingStock: stock(200),
			NameES: "Diploma de Maestro", NameEN: "Master Diploma",
			DescriptionES: "Diploma enmarcado con tu nombre de superhéroe", DescriptionEN: "Framed diploma with your superhero name"},
		{Code: "AVATAR_EXCLUSIVO", Kind: reward.KindDigital, Rarity: reward.RarityCommon, Cost: 50, Redeemable: true,
			NameES: "Avatar Exclusivo", NameEN: "Exclusive Avatar",
			DescriptionES: "Desbloquea un avatar especial", DescriptionEN: "Unlock a special avatar"},
		{Code: "MISION_SECRETA", Kind: reward.KindExperience, Rarity: reward.RarityLegendary, Cost: 300, Redeemable: true,
			NameES: "Misión Secreta", NameEN: "Secret Mission",
			DescriptionES: "Una videollamada con tu Arcángel", DescriptionEN: "A video call with your Archangel"},
	}
}

// SeedCatalogHandler inserts catalog entries whose code is not yet present.
type SeedCatalogHandler struct {
	uow   store.UnitOfWorkFactory
	clock shared.Clock
	log   *logger.Logger
}

// NewSeedCatalogHandler creates a new SeedCatalogHandler.
func NewSeedCatalogHandler(uow store.UnitOfWorkFactory, clock shared.Clock, log *logger.Logger) *SeedCatalogHandler {
	return &SeedCatalogHandler{
		uow:   uow,
		clock: orSystemClock(clock),
		log:   orNop(log).With(logger.Component("seed_catalog")),
	}
}

// Handle inserts the given rewards and returns how many were created.
// Running it twice creates nothing the second time.
func (h *SeedCatalogHandler) Handle(ctx context.Context, rewards []reward.Reward) (int, error) {
	created := 0
	err := store.Run(ctx, h.uow, func(uow store.UnitOfWork) error {
		created = 0
		for i := range rewards {
			r := rewards[i]
			if _, err := uow.Rewards().GetByCode(ctx, r.Code); err == nil {
				continue
			} else if !shared.IsNotFound(err) {
				return err
			}
			if r.ID == "" {
				r.ID = shared.NewID()
			}
			r.CreatedAt = h.clock.Now()
			if err := r.Validate(); err != nil {
				return err
			}
			if err := uow.Rewards().Create(ctx, &r); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	h.log.Info("catalog seeded", logger.Int("created", created), logger.Int("total", len(rewards)))
	return created, nil
}
