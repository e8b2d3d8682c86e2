// Package server exposes the facilitator over HTTP.
package server

import (
	"context"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/licode-labs/facilitator/internal/chain"
	"github.com/licode-labs/facilitator/internal/config"
	"github.com/licode-labs/facilitator/internal/facilitator"
)

// lowBalanceWei is the distributor balance below which health degrades
// (0.01 native token).
var lowBalanceWei = new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil)

// Throttling limits: the verification flow is the expensive surface, the
// global bucket backstops everything else.
const (
	verifyPerMinute = 5
	verifyBurst     = 5
	globalPerMinute = float64(100) / 15
	globalBurst     = 100
)

// Pinger reports replay-store connectivity for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the facilitator service into gin handlers.
type Server struct {
	cfg         *config.Config
	svc         *facilitator.Service
	gw          chain.Gateway
	pinger      Pinger // nil when the in-process store is used
	distributor string
	log         *zap.Logger
}

// New builds a Server. pinger may be nil.
func New(cfg *config.Config, svc *facilitator.Service, gw chain.Gateway, pinger Pinger, distributor string, log *zap.Logger) *Server {
	return &Server{
		cfg:         cfg,
		svc:         svc,
		gw:          gw,
		pinger:      pinger,
		distributor: distributor,
		log:         log,
	}
}

// Router assembles the HTTP routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(s.log))

	// Scrape and health routes stay outside the limiters.
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", s.handleHealth)

	verify := []gin.HandlerFunc{s.handleVerify}
	if s.cfg.RateLimitEnabled {
		r.Use(RateLimit(globalPerMinute, globalBurst, "Too many requests from this IP"))
		verify = append([]gin.HandlerFunc{
			RateLimit(verifyPerMinute, verifyBurst, "Too many verification attempts, please wait"),
		}, verify...)
	}

	r.GET("/mint", s.handleMint)
	r.GET("/stats", s.handleStats)
	r.POST("/verify", verify...)
	r.POST("/gasless/transfer", s.handleGaslessTransfer)
	r.GET("/gasless/status", s.handleGaslessStatus)

	return r
}

type verifyRequest struct {
	TxHash string `json:"txHash"`
	User   string `json:"user"`
}

func (s *Server) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing args"})
		return
	}

	record, err := s.svc.VerifyPayment(c.Request.Context(), req.TxHash, req.User, c.ClientIP())
	if err != nil {
		s.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"tx":            record.DistributorTx,
		"paymentTx":     record.PaymentTx,
		"distributorTx": record.DistributorTx,
	})
}

func (s *Server) handleGaslessTransfer(c *gin.Context) {
	var req facilitator.GaslessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	record, err := s.svc.GaslessTransfer(c.Request.Context(), &req)
	if err != nil {
		s.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"paymentTx":     record.PaymentTx,
		"distributorTx": record.DistributorTx,
		"status":        record.Status,
	})
}

func (s *Server) handleGaslessStatus(c *gin.Context) {
	record, err := s.svc.AuthorizationStatus(c.Request.Context(), c.Query("from"), c.Query("nonce"))
	if err != nil {
		s.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.svc.Stats(c.Request.Context())
	if err != nil {
		s.writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleMint(c *gin.Context) {
	c.JSON(http.StatusPaymentRequired, gin.H{
		"message":  "Payment Required",
		"network":  networkName(s.cfg.ChainID),
		"currency": "USDC",
		"amount6":  s.cfg.MintUnit.String(),
		"payTo":    s.cfg.Treasury,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	status := "healthy"
	checks := gin.H{}

	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			checks["redis"] = "disconnected"
			status = "degraded"
		} else {
			checks["redis"] = "connected"
		}
	} else {
		checks["redis"] = "disabled"
	}

	if block, err := s.gw.BlockNumber(ctx); err != nil {
		checks["rpc"] = "disconnected"
		status = "unhealthy"
	} else {
		checks["rpc"] = "connected"
		checks["blockNumber"] = block
	}

	if balance, err := s.gw.Balance(ctx, s.distributor); err == nil {
		checks["distributorBalance"] = balance.String()
		if balance.Cmp(lowBalanceWei) < 0 {
			checks["warning"] = "distributor balance low"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["distributorBalance"] = "unknown"
	}

	checks["status"] = status
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, checks)
}

func (s *Server) writeFault(c *gin.Context, err error) {
	fault := facilitator.AsFault(err)
	if fault.Status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("code", fault.Code), zap.Error(err))
	}
	c.JSON(fault.Status, fault)
}

// networkName maps known chain ids to their short names; unknown chains use
// the CAIP-2 form.
func networkName(chainID int64) string {
	switch chainID {
	case 8453:
		return "base"
	case 84532:
		return "base-sepolia"
	default:
		return "eip155:" + big.NewInt(chainID).String()
	}
}
