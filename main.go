package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
	enginex "github.com/jirayu-k/wayfinder/agent/engine"
	memoryx "github.com/jirayu-k/wayfinder/agent/memory"
	"github.com/jirayu-k/wayfinder/agent/responders"
	"github.com/jirayu-k/wayfinder/agent/route"
	configx "github.com/jirayu-k/wayfinder/pkg/config"
	_ "github.com/jirayu-k/wayfinder/pkg/logger/autoload"
	ollamax "github.com/jirayu-k/wayfinder/pkg/ollama"
	openaix "github.com/jirayu-k/wayfinder/pkg/openaicompat"
)

type AppConfig struct {
	Generator     string `envconfig:"GENERATOR" default:"ollama"`
	EnableCache   bool   `envconfig:"ENABLE_MEMORY_CACHE" split_words:"true" default:"false"`
	EnableDurable bool   `envconfig:"ENABLE_MEMORY_DB" split_words:"true" default:"false"`
	RequesterID   string `envconfig:"REQUESTER_ID" split_words:"true" default:"local"`
	RequesterName string `envconfig:"REQUESTER_NAME" split_words:"true" default:"local"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("WAYFINDER")

	gen := buildGenerator(appCfg.Generator)
	gateway := buildMemory(appCfg)

	table := route.DefaultTable()
	registry, err := responders.NewRegistry(table, gen, gateway)
	if err != nil {
		log.Fatal().Err(err).Msg("build responder registry")
	}

	engineCfg := configx.MustNew[enginex.Config]("ROUTER")
	eng, err := enginex.New(table, registry, gateway, *engineCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}

	log.Info().Str("generator", appCfg.Generator).Msg("wayfinder ready")
	runLoop(eng, appCfg)
}

func buildGenerator(kind string) contractx.Generator {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "ollama":
		return ollamax.MustNew(*configx.MustNew[ollamax.Config]("OLLAMA"))
	case "openai":
		client, err := openaix.NewClient(*configx.MustNew[openaix.Config]("OPENAI"))
		if err != nil {
			log.Fatal().Err(err).Msg("build openai-compatible client")
		}
		return client
	default:
		log.Fatal().Str("generator", kind).Msg("unknown generator kind")
		return nil
	}
}

func buildMemory(appCfg *AppConfig) *memoryx.Gateway {
	var cache *memoryx.RedisCache
	if appCfg.EnableCache {
		cfg := configx.MustNew[memoryx.CacheConfig]("MEMORY_CACHE")
		built, err := memoryx.NewRedisCache(*cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("build redis cache")
		}
		cache = built
	}

	var durable *memoryx.DurableLog
	if appCfg.EnableDurable {
		cfg := configx.MustNew[memoryx.DBConfig]("MEMORY_DB")
		db, err := memoryx.OpenPostgres(*cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres")
		}
		durable = memoryx.NewDurableLog(db)
		if err := durable.EnsureSchema(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("ensure exchange log schema")
		}
	}

	gwCfg := configx.MustNew[memoryx.GatewayConfig]("MEMORY")
	return memoryx.NewGateway(cache, durable, *gwCfg)
}

func runLoop(eng *enginex.Engine, appCfg *AppConfig) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Type a request (ctrl-d to quit):")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		st, err := eng.Process(context.Background(), enginex.Request{
			RequesterID:   appCfg.RequesterID,
			RequesterName: appCfg.RequesterName,
			Text:          text,
		})
		if err != nil {
			log.Error().Err(err).Msg("process request")
			continue
		}
		fmt.Println(st.FinalAnswer)
	}
}
