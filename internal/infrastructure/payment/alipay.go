package payment

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"devmarket/internal/apperr"
	"devmarket/internal/domain"
	"devmarket/internal/telemetry"

	"github.com/shopspring/decimal"
	"github.com/smartwalle/alipay/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	alipayCodeUnavailable alipay.Code = "20000"
	alipayTradeNotExist               = "ACQ.TRADE_NOT_EXIST"
)

type AlipayConfig struct {
	AppID      string
	PrivateKey string
	PublicKey  string
	GatewayURL string
	Production bool
	Timeout    time.Duration
}

type alipayGateway struct {
	appID   string
	client  *alipay.Client
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

// NewAlipayGateway builds the adapter once at process start. Keys may be PEM
// or bare base64.
func NewAlipayGateway(cfg AlipayConfig, logger *zap.Logger, metrics *telemetry.Metrics) (Gateway, error) {
	priv, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("alipay: %w", err)
	}
	pub, err := ParsePublicKey(cfg.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("alipay: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("alipay: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []alipay.OptionFunc{alipay.WithHTTPClient(&http.Client{Timeout: timeout})}
	if cfg.GatewayURL != "" {
		opts = append(opts, alipay.WithSandboxGateway(cfg.GatewayURL), alipay.WithProductionGateway(cfg.GatewayURL))
	}
	client, err := alipay.New(cfg.AppID, base64.StdEncoding.EncodeToString(x509.MarshalPKCS1PrivateKey(priv)), cfg.Production, opts...)
	if err != nil {
		return nil, fmt.Errorf("alipay: %w", err)
	}
	if err := client.LoadAliPayPublicKey(base64.StdEncoding.EncodeToString(pubDER)); err != nil {
		return nil, fmt.Errorf("alipay: load provider key: %w", err)
	}

	return &alipayGateway{
		appID:   cfg.AppID,
		client:  client,
		logger:  logger,
		metrics: metrics,
	}, nil
}

func (g *alipayGateway) Name() string { return "ALIPAY" }

func (g *alipayGateway) BuildPaymentRedirect(_ context.Context, req RedirectRequest) (string, error) {
	u, err := g.client.TradePagePay(alipay.TradePagePay{
		Trade: alipay.Trade{
			NotifyURL:   req.NotifyURL,
			ReturnURL:   req.ReturnURL,
			Subject:     req.Subject,
			OutTradeNo:  req.OrderID.String(),
			TotalAmount: FormatAmount(req.Amount),
			ProductCode: "FAST_INSTANT_TRADE_PAY",
		},
	})
	if err != nil {
		return "", fmt.Errorf("alipay page pay %s: %w", req.OrderID, err)
	}
	return u.String(), nil
}

func (g *alipayGateway) VerifyNotification(params url.Values) bool {
	if params.Get("sign") == "" {
		return false
	}
	if t := params.Get("sign_type"); t != "" && t != "RSA2" {
		return false
	}
	if app := params.Get("app_id"); app != "" && app != g.appID {
		return false
	}
	if err := g.client.VerifySign(cloneValues(params)); err != nil {
		g.logger.Debug("alipay notification failed signature check", zap.Error(err))
		return false
	}
	return true
}

func (g *alipayGateway) QueryStatus(ctx context.Context, outTradeNo, tradeNo string) (result domain.TradeQueryResult, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "alipay.trade.query")
	span.SetAttributes(attribute.String("out_trade_no", outTradeNo))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = apperr.Kind(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		g.metrics.GatewayCall("query", outcome, time.Since(start).Seconds())
		span.End()
	}()

	rsp, err := g.client.TradeQuery(ctx, alipay.TradeQuery{OutTradeNo: outTradeNo, TradeNo: tradeNo})
	if err != nil {
		var providerErr *alipay.Error
		if !errors.As(err, &providerErr) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			g.logger.Warn("alipay query failed", zap.String("out_trade_no", outTradeNo), zap.Error(err))
			return result, fmt.Errorf("alipay query %s: %v: %w", outTradeNo, err, apperr.ErrGatewayUnavailable)
		}
		rsp = &alipay.TradeQueryRsp{Error: *providerErr}
	}

	result.OutTradeNo = outTradeNo
	switch {
	case rsp.Code == alipay.CodeSuccess:
	case rsp.SubCode == alipayTradeNotExist:
		result.TradeStatus = domain.TradeNotExist
		return result, nil
	case rsp.Code == alipayCodeUnavailable:
		return result, fmt.Errorf("alipay query %s: %s: %w", outTradeNo, rsp.SubMsg, apperr.ErrGatewayUnavailable)
	default:
		return result, fmt.Errorf("alipay query %s: code %s %s: %w",
			outTradeNo, rsp.Code, rsp.SubCode, apperr.ErrGatewayUnavailable)
	}

	result.TradeNo = rsp.TradeNo
	result.TradeStatus = domain.TradeStatus(rsp.TradeStatus)
	if rsp.OutTradeNo != "" {
		result.OutTradeNo = rsp.OutTradeNo
	}
	if rsp.TotalAmount != "" {
		if amount, err := decimal.NewFromString(rsp.TotalAmount); err == nil {
			result.TotalAmount = amount
		}
	}
	return result, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
