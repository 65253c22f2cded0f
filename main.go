package main

import (
	"log"
	"net/http"

	"social-poster-backend/config"
	"social-poster-backend/controllers/authentication"
	"social-poster-backend/controllers/httpCors"
	"social-poster-backend/controllers/oauthstate"
	"social-poster-backend/controllers/social"
	"social-poster-backend/models/connections"
	"social-poster-backend/models/users"
	"social-poster-backend/services/instagram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// Инициализируем базу данных
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("Ошибка инициализации базы данных: %v", err)
	}

	// Выполняем миграцию базы данных
	err = db.AutoMigrate(
		&users.User{},
		&users.GoogleUser{},
		&connections.Connection{},
	)
	if err != nil {
		log.Fatalf("Ошибка миграции базы данных: %v", err)
	}

	// Проверка подключения к базе данных
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Ошибка получения подключения к базе данных: %v", err)
	}
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Ошибка подключения к базе данных: %v", err)
	}
	log.Println("Подключение к базе данных успешно")

	states := oauthstate.NewStore([]byte(cfg.SessionSecret))
	store := connections.NewStore(db)
	client := instagram.NewClient(cfg)
	tokens := instagram.NewTokenManager(store, client)

	authHandler := authentication.NewHandler(db, cfg, states)
	socialHandler := social.NewHandler(cfg, store, client, tokens, states)

	mux := http.NewServeMux()

	mux.HandleFunc("/register", authHandler.Register)
	mux.HandleFunc("/login", authHandler.Login)
	mux.HandleFunc("/profile", authHandler.Profile)
	mux.HandleFunc("/logout", authHandler.Logout)

	mux.HandleFunc("/login/google", authHandler.HandleGoogleLogin)
	mux.HandleFunc("/callback/google", authHandler.HandleGoogleCallback)

	mux.HandleFunc("/auth/instagram/login", socialHandler.HandleInstagramLogin)
	mux.HandleFunc("/auth/instagram/callback", socialHandler.HandleInstagramCallback)

	mux.HandleFunc("/api/instagram/accounts", socialHandler.HandleAccounts)
	mux.HandleFunc("/api/instagram/token-status", socialHandler.HandleTokenStatus)
	mux.HandleFunc("/api/instagram/refresh-token", socialHandler.HandleRefreshToken)
	mux.HandleFunc("/api/instagram/post", socialHandler.HandlePublish)

	mux.HandleFunc("/webhook/instagram", socialHandler.HandleWebhook)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	handler := httpCors.CorsSettings(cfg.AppURL).Handler(mux)

	// Запускаем сервер
	log.Printf("Сервер запущен на порту %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		log.Fatalf("Ошибка запуска сервера: %v", err)
	}
}
