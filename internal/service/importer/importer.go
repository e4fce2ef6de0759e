package importer

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Feed — формат партнёрского YAML-фида каталога.
type Feed struct {
	Shop       string         `yaml:"shop"`
	Categories []FeedCategory `yaml:"categories"`
	Goods      []FeedGood     `yaml:"goods"`
}

// FeedCategory — категория из фида партнёра.
type FeedCategory struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// FeedGood — товарная позиция из фида партнёра. Цены приходят в основных
// денежных единицах и конвертируются в минорные при импорте.
type FeedGood struct {
	ID       int64   `yaml:"id"`
	Category int64   `yaml:"category"`
	Model    string  `yaml:"model"`
	Name     string  `yaml:"name"`
	Price    float64 `yaml:"price"`
	PriceRRC float64 `yaml:"price_rrc"`
	Quantity int64   `yaml:"quantity"`
}

// Result — сводка выполненного импорта.
type Result struct {
	ShopID         string
	ShopName       string
	CategoriesSeen int
	ProductsLoaded int
}

// Service импортирует каталог магазина из партнёрского фида. Импорт выполняет
// полную замену прайса магазина: старые ProductInfo удаляются, новые
// вставляются, всё в одной транзакции.
type Service struct {
	uow    domain.UnitOfWork
	logger *log.Entry
}

// NewService создаёт сервис импорта каталога.
func NewService(uow domain.UnitOfWork, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "importer")
	}
	return &Service{
		uow:    uow,
		logger: logger,
	}
}

// ImportFeed читает YAML-фид и загружает его в каталог.
func (s *Service) ImportFeed(ctx context.Context, r io.Reader) (Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read feed: %w", err)
	}

	var feed Feed
	if err := yaml.Unmarshal(raw, &feed); err != nil {
		return Result{}, fmt.Errorf("parse feed: %w: %v", domain.ErrFeedInvalid, err)
	}

	return s.Import(ctx, feed)
}

// Import загружает уже разобранный фид в каталог.
func (s *Service) Import(ctx context.Context, feed Feed) (Result, error) {
	if feed.Shop == "" {
		return Result{}, fmt.Errorf("import feed: %w", domain.ErrShopRequired)
	}

	for _, good := range feed.Goods {
		if good.Quantity < 0 {
			return Result{}, fmt.Errorf("good %d: %w", good.ID, domain.ErrQuantityNegative)
		}
		if good.Price <= 0 || good.PriceRRC <= 0 {
			return Result{}, fmt.Errorf("good %d: %w", good.ID, domain.ErrPriceInvalid)
		}
	}

	var result Result
	err := s.uow.WithinTx(ctx, func(tx domain.Tx) error {
		shop, err := tx.Catalog().UpsertShop(ctx, domain.Shop{
			Name:            feed.Shop,
			AcceptingOrders: true,
		})
		if err != nil {
			return fmt.Errorf("upsert shop: %w", err)
		}

		categoryIDs := make(map[int64]string, len(feed.Categories))
		for _, category := range feed.Categories {
			saved, err := tx.Catalog().UpsertCategory(ctx, domain.Category{
				ExternalID: category.ID,
				Name:       category.Name,
			})
			if err != nil {
				return fmt.Errorf("upsert category %d: %w", category.ID, err)
			}
			categoryIDs[category.ID] = saved.ID
		}

		// Полная замена прайса магазина.
		if err := tx.Products().DeleteByShop(ctx, shop.ID); err != nil {
			return fmt.Errorf("delete old product infos: %w", err)
		}

		for _, good := range feed.Goods {
			card, err := tx.Catalog().UpsertProduct(ctx, domain.Product{
				Name:       good.Name,
				CategoryID: categoryIDs[good.Category],
			})
			if err != nil {
				return fmt.Errorf("upsert product %q: %w", good.Name, err)
			}

			info := domain.ProductInfo{
				ID:            uuid.NewString(),
				ShopID:        shop.ID,
				ProductID:     card.ID,
				ExternalID:    good.ID,
				Model:         good.Model,
				Quantity:      good.Quantity,
				PriceMinor:    toMinorUnits(good.Price),
				PriceRRCMinor: toMinorUnits(good.PriceRRC),
			}
			if errs := info.Validate(); len(errs) > 0 {
				return fmt.Errorf("good %d: %w", good.ID, errs[0])
			}
			if err := tx.Products().Insert(ctx, info); err != nil {
				return fmt.Errorf("insert product info %d: %w", good.ID, err)
			}
		}

		result = Result{
			ShopID:         shop.ID,
			ShopName:       shop.Name,
			CategoriesSeen: len(feed.Categories),
			ProductsLoaded: len(feed.Goods),
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.WithFields(log.Fields{
		"shop":       result.ShopName,
		"categories": result.CategoriesSeen,
		"products":   result.ProductsLoaded,
	}).Info("каталог магазина импортирован")

	return result, nil
}

// ListShopProducts возвращает текущий прайс магазина.
func (s *Service) ListShopProducts(ctx context.Context, shopID string) ([]domain.ProductInfo, error) {
	var products []domain.ProductInfo
	err := s.uow.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		products, err = tx.Products().ListByShop(ctx, shopID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list products for shop %s: %w", shopID, err)
	}
	return products, nil
}

// toMinorUnits переводит цену из основных денежных единиц в минорные.
func toMinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}
