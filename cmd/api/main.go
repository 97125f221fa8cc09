package main

import (
	"log"

	"shop/internal/config"
	"shop/internal/domain/model"
	"shop/internal/handler"
	"shop/internal/infra/db"
	"shop/internal/infra/gateway"
	"shop/internal/infra/mq"
	infraRepo "shop/internal/infra/repository"
	"shop/internal/server"
	"shop/internal/usecase"

	"github.com/joho/godotenv"
)

func main() {
	//.envはローカル開発用。無ければ環境変数だけで動く。
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}

	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.ProductVariant{},
		&model.Cart{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
		&model.Payment{},
		&model.Coupon{},
		&model.AuditLog{},
	); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	inventoryRepo := infraRepo.NewInventoryGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	couponRepo := infraRepo.NewCouponGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//決済ゲートウェイ
	gw := gateway.NewMidtransClient(cfg.MidtransServerKey, cfg.MidtransProduction)

	//注文イベント（AMQP_URL未設定なら発行しない）
	var publisher mq.Publisher
	if cfg.AMQPURL != "" {
		p, err := mq.NewRabbitPublisher(cfg.AMQPURL, cfg.OrderExchange)
		if err != nil {
			log.Fatalf("rabbitmq: %v", err)
		}
		defer p.Close()
		publisher = p
	}

	e := server.NewEcho()

	//Usecase生成
	authUC := usecase.NewAuthUsecase(cfg, userRepo)
	productUC := usecase.NewProductUsecase(productRepo, inventoryRepo, auditRepo)
	cartUC := usecase.NewCartUsecase(cartRepo, cartRepo, productRepo)
	orderUC := usecase.NewOrderUsecase(txManager, userRepo, gw, e.Logger)
	paymentUC := usecase.NewPaymentUsecase(txManager, cfg.MidtransServerKey, cfg.MidtransProduction, publisher, e.Logger)
	couponUC := usecase.NewCouponUsecase(couponRepo)
	adminOrderUC := usecase.NewAdminOrderUsecase(txManager, auditRepo)

	//Handler生成
	server.RegisterRoutes(e, cfg, server.Handlers{
		Auth:         handler.NewAuthHandler(authUC),
		Product:      handler.NewProductHandler(productUC),
		Cart:         handler.NewCartHandler(cartUC),
		Order:        handler.NewOrderHandler(orderUC),
		Payment:      handler.NewPaymentHandler(paymentUC),
		Coupon:       handler.NewCouponHandler(couponUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC),
	})

	if err := server.Start(e, cfg.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}
