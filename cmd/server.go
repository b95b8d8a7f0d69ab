// Package main はKenbikyoサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kenbikyo/internal/camera"
	"kenbikyo/internal/config"
	"kenbikyo/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host  = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port  = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		debug = flag.Bool("debug", false, "デバッグログを有効化")
		help  = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Kenbikyo - USBマイクロスコープビューア")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// ログレベルを設定
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("設定の読み込みに失敗しました")
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	// サーバーを作成
	srv := server.New(cfg, camera.NewOpenCVTransport())

	// サーバーを起動
	log.Info().Str("address", cfg.ServerAddress()).Msg("Kenbikyo サーバーを起動します")
	if err := srv.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("サーバーの起動に失敗しました")
	}
}
