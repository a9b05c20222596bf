package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/core/service"
)

const InventoryServiceName = "inventory.v1.InventoryService"

type AdjustStockRequest struct {
	ItemID  string  `json:"itemId"`
	Delta   string  `json:"delta"`
	Note    *string `json:"note,omitempty"`
	TxnDate string  `json:"txnDate,omitempty"`
}

type AdjustStockResponse struct {
	ItemID     string `json:"itemId"`
	TotalStock int64  `json:"totalStock"`
}

type SetPriceRequest struct {
	ItemID        string `json:"itemId"`
	Price         string `json:"price"`
	EffectiveDate string `json:"effectiveDate"`
}

type SetPriceResponse struct {
	ItemID        string `json:"itemId"`
	Price         string `json:"price"`
	EffectiveDate string `json:"effectiveDate"`
}

type ReportRequest struct {
	Date string `json:"date,omitempty"`
}

type StockReportResponse struct {
	Rows []stockReportRow `json:"rows"`
}

type PriceReportResponse struct {
	Rows []priceReportRow `json:"rows"`
}

type GetItemRequest struct {
	ItemID string `json:"itemId"`
}

type ItemResponse = itemView

// InventoryServer is the RPC surface over the ledger operations.
type InventoryServer interface {
	AdjustStock(context.Context, *AdjustStockRequest) (*AdjustStockResponse, error)
	SetPrice(context.Context, *SetPriceRequest) (*SetPriceResponse, error)
	StockReport(context.Context, *ReportRequest) (*StockReportResponse, error)
	PriceReport(context.Context, *ReportRequest) (*PriceReportResponse, error)
	GetItem(context.Context, *GetItemRequest) (*ItemResponse, error)
}

type GRPCHandler struct {
	inventory *service.InventoryService
}

func NewGRPCHandler(inventory *service.InventoryService) *GRPCHandler {
	return &GRPCHandler{inventory: inventory}
}

func (h *GRPCHandler) AdjustStock(ctx context.Context, req *AdjustStockRequest) (*AdjustStockResponse, error) {
	id, err := parseItemID(req.ItemID)
	if err != nil {
		return nil, toStatus(err)
	}
	delta, err := domain.ParseWholeNumber(req.Delta, "delta")
	if err != nil {
		return nil, toStatus(err)
	}

	adj := domain.StockAdjustment{Delta: delta, Note: req.Note}
	if req.TxnDate != "" {
		date, err := domain.ParseDate(req.TxnDate)
		if err != nil {
			return nil, toStatus(err)
		}
		adj.TxnDate = &date
	}

	total, err := h.inventory.AdjustStock(ctx, id, adj)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AdjustStockResponse{
		ItemID:     total.ItemID.String(),
		TotalStock: total.TotalStock,
	}, nil
}

func (h *GRPCHandler) SetPrice(ctx context.Context, req *SetPriceRequest) (*SetPriceResponse, error) {
	id, err := parseItemID(req.ItemID)
	if err != nil {
		return nil, toStatus(err)
	}
	date, err := domain.ParseDate(req.EffectiveDate)
	if err != nil {
		return nil, toStatus(err)
	}

	change, err := h.inventory.SetPrice(ctx, id, req.Price, date)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SetPriceResponse{
		ItemID:        change.ItemID.String(),
		Price:         domain.FormatPrice(change.Price),
		EffectiveDate: change.EffectiveDate.String(),
	}, nil
}

func (h *GRPCHandler) StockReport(ctx context.Context, req *ReportRequest) (*StockReportResponse, error) {
	date, err := h.reportDate(req.Date)
	if err != nil {
		return nil, toStatus(err)
	}

	rows, err := h.inventory.StockReport(ctx, date)
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &StockReportResponse{Rows: make([]stockReportRow, 0, len(rows))}
	for _, r := range rows {
		resp.Rows = append(resp.Rows, stockReportRow{
			ItemID:     r.ItemID.String(),
			ItemName:   r.ItemName,
			TotalStock: r.TotalStock,
		})
	}
	return resp, nil
}

func (h *GRPCHandler) PriceReport(ctx context.Context, req *ReportRequest) (*PriceReportResponse, error) {
	date, err := h.reportDate(req.Date)
	if err != nil {
		return nil, toStatus(err)
	}

	rows, err := h.inventory.PriceReport(ctx, date)
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &PriceReportResponse{Rows: make([]priceReportRow, 0, len(rows))}
	for _, r := range rows {
		resp.Rows = append(resp.Rows, priceReportRow{
			ItemID:   r.ItemID.String(),
			ItemName: r.ItemName,
			Price:    domain.FormatNullPrice(r.Price),
		})
	}
	return resp, nil
}

func (h *GRPCHandler) GetItem(ctx context.Context, req *GetItemRequest) (*ItemResponse, error) {
	id, err := parseItemID(req.ItemID)
	if err != nil {
		return nil, toStatus(err)
	}

	item, err := h.inventory.GetItem(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	view := newItemView(item)
	return &view, nil
}

func (h *GRPCHandler) reportDate(raw string) (domain.Date, error) {
	if raw == "" {
		return h.inventory.Today(), nil
	}
	return domain.ParseDate(raw)
}

func parseItemID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.InvalidArgument("itemId must be a UUID")
	}
	return id, nil
}

func toStatus(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrUnauthenticated):
		code = codes.Unauthenticated
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrConflict):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrUnavailable):
		code = codes.Unavailable
	}
	return status.Error(code, domain.PublicMessage(err))
}

// NewGRPCServer registers the inventory service behind token auth and request logging.
func NewGRPCServer(h InventoryServer, auth *service.AuthService, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		unaryLogger(logger),
		unaryAuth(auth),
	))
	server := grpc.NewServer(opts...)
	server.RegisterService(&inventoryServiceDesc, h)
	return server
}

func unaryAuth(auth *service.AuthService) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		token, ok := strings.CutPrefix(values[0], "Bearer ")
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		if _, err := auth.VerifyToken(strings.TrimSpace(token)); err != nil {
			return nil, toStatus(err)
		}
		return next(ctx, req)
	}
}

func unaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("latency", time.Since(start)),
		}
		if code == codes.Internal || code == codes.Unavailable {
			logger.Warn("gRPC request", append(fields, zap.Error(err))...)
		} else {
			logger.Info("gRPC request", fields...)
		}
		return resp, err
	}
}

func unaryMethod[Req, Resp any](name string, call func(InventoryServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(InventoryServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + InventoryServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*Req))
			})
		},
	}
}

var inventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: InventoryServiceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("AdjustStock", InventoryServer.AdjustStock),
		unaryMethod("SetPrice", InventoryServer.SetPrice),
		unaryMethod("StockReport", InventoryServer.StockReport),
		unaryMethod("PriceReport", InventoryServer.PriceReport),
		unaryMethod("GetItem", InventoryServer.GetItem),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: InventoryServiceName,
}
