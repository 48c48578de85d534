package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bitget-connector/pkg/logger"
	"bitget-connector/pkg/metrics"
	"bitget-connector/pkg/schema"
	"bitget-connector/pkg/sdk"
)

func main() {
	fmt.Println("=== Bitget Connector 快速开始 ===")

	// 凭证从.env或环境变量读取,公共行情无需配置
	if err := godotenv.Load(); err != nil {
		logger.Debug("未找到.env文件,使用进程环境变量")
	}
	logger.Init()

	client, err := sdk.New(sdk.ConfigFromEnv())
	if err != nil {
		panic(err)
	}
	defer client.Close()

	ctx := context.Background()

	// 对时,提前暴露本地时钟漂移
	if serverTime, err := client.FetchServerTime(ctx); err == nil {
		fmt.Printf("交易所时间: %s (本地偏移 %s)\n", serverTime.Format(time.RFC3339), time.Since(serverTime).Round(time.Millisecond))
	} else {
		fmt.Printf("获取交易所时间失败: %v\n", err)
	}

	// 订阅现货与U本位合约行情
	fmt.Println("订阅行情数据...")
	if err := client.SubscribeTicker(ctx, schema.SPOT, "BTCUSDT", "ETHUSDT"); err != nil {
		panic(err)
	}
	if err := client.SubscribeCandle(ctx, schema.SPOT, schema.Interval1m, "BTCUSDT"); err != nil {
		panic(err)
	}
	if err := client.SubscribeDepth(ctx, schema.USDTFutures, "BTCUSDT"); err != nil {
		panic(err)
	}

	// 会话级错误(断线重连、协议错误)与数据路径分离
	go func() {
		for err := range client.Errors() {
			logger.Warn("会话错误: %v", err)
		}
	}()

	// prometheus指标
	go func() {
		http.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(":2112", nil); err != nil {
			logger.Warn("metrics服务退出: %v", err)
		}
	}()

	fmt.Println("每3秒打印一次缓存数据,按 Ctrl+C 退出")
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			fmt.Printf("\n=== %s ===\n", time.Now().Format("2006-01-02 15:04:05"))

			for _, instID := range []string{"BTCUSDT", "ETHUSDT"} {
				if tk, ok := client.WatchTicker(schema.SPOT, instID); ok {
					fmt.Printf("现货%s: 最新=%s 买一=%s 卖一=%s\n", instID, tk.Last, tk.BidPrice, tk.AskPrice)
				} else {
					fmt.Printf("现货%s: 暂无数据\n", instID)
				}
			}

			if c, ok := client.WatchCandle(schema.SPOT, "BTCUSDT", schema.Interval1m); ok {
				fmt.Printf("现货BTCUSDT 1m K线: 开=%s 高=%s 低=%s 收=%s\n", c.Open, c.High, c.Low, c.Close)
			} else {
				fmt.Println("现货BTCUSDT 1m K线: 暂无数据")
			}

			if d, ok := client.WatchDepth(schema.USDTFutures, "BTCUSDT"); ok && len(d.Bids) > 0 && len(d.Asks) > 0 {
				fmt.Printf("U本位BTCUSDT深度: 买%d档 卖%d档 买一=%s 卖一=%s\n",
					len(d.Bids), len(d.Asks), d.Bids[0].Price, d.Asks[0].Price)
			} else {
				fmt.Println("U本位BTCUSDT深度: 暂无数据")
			}

		case <-quit:
			fmt.Println("\n收到退出信号,正在关闭...")
			return
		}
	}
}
