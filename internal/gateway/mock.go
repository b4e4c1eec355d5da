package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const mockQrCode = "00020101021126360014BR.GOV.BCB.PIX0114+5584999999995204000053039865802BR5913PIX SETTLEMENT6009SAO PAULO"

// Mock accepts every request without contacting a provider.
// FailCharges and FailTransfers make the next calls fail with that message.
type Mock struct {
	mu            sync.Mutex
	FailCharges   string
	FailTransfers string
	Charges       []ChargeRequest
	Transfers     []TransferRequest
}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) CreateCharge(_ context.Context, req ChargeRequest) Result[Charge] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Charges = append(m.Charges, req)
	if m.FailCharges != "" {
		return failed[Charge](m.FailCharges, "")
	}

	id := uuid.New().String()
	return ok(&Charge{
		TransactionId: "mock-" + id,
		OrderId:       "mock-order-" + id,
		Status:        "OK",
		QrCode:        mockQrCode,
		QrCodeBase64:  "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAAB",
		OrderUrl:      "https://example.com/order/mock",
	}, `{"mock":true}`)
}

func (m *Mock) CreateTransfer(_ context.Context, req TransferRequest) Result[Transfer] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transfers = append(m.Transfers, req)
	if m.FailTransfers != "" {
		return failed[Transfer](m.FailTransfers, "")
	}
	return ok(&Transfer{TransactionId: "mock-" + uuid.New().String(), Status: "PENDING"}, `{"mock":true}`)
}
