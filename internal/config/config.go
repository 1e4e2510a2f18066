package config

import "time"

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	Auth    Auth    `envPrefix:"AUTH_"`
	Redis   Redis   `envPrefix:"REDIS_"`
	Stripe  Stripe  `envPrefix:"STRIPE_"`
	Pricing Pricing `envPrefix:"PRICING_"`
}

type Stripe struct {
	BaseApiURL    string `env:"BASE_API_URL" envDefault:"https://api.stripe.com"`
	SecretKey     string `env:"SECRET_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	ProPriceID    string `env:"PRO_PRICE_ID"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
}

type Redis struct {
	Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	PriceTTL time.Duration `env:"PRICE_TTL" envDefault:"1h"`
}

// Pricing is loaded once at startup and passed explicitly to the order
// calculator; it is never read as ambient global state.
type Pricing struct {
	// Platform fee taken from each order, in basis points of the total.
	FeeBps   int64  `env:"FEE_BPS" envDefault:"1000"`
	Currency string `env:"CURRENCY" envDefault:"usd"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}
