package testtool

import (
	"net/http"
	_ "net/http/pprof" // 匯入後會自動註冊 pprof endpoint

	"realtime_chat_client/pkg/config"
	"realtime_chat_client/pkg/logger"

	"go.uber.org/zap"
)

// PprofAddr 只在本機開放
const PprofAddr = "127.0.0.1:6060"

// StartPprof 根據環境變數啟動 pprof 監控伺服器
func StartPprof() {
	if config.IsProduction() {
		logger.Log.Info("Production environment detected, pprof is disabled.")
		return
	}

	go func() {
		logger.Log.Info("Starting pprof server", zap.String("addr", PprofAddr))
		if err := http.ListenAndServe(PprofAddr, nil); err != nil {
			logger.Log.Errorf("pprof server failed:", err)
		}
	}()
}

// curl http://localhost:6060/debug/pprof/
// go tool pprof http://localhost:6060/debug/pprof/goroutine
// 重連 / typing sweep / presence timer 的 goroutine 數量可以從這裡看
