package validator

import "testing"

type createRequest struct {
	Amount          int64  `json:"amount" validate:"required,gt=0"`
	MerchantOrderID string `json:"merchantOrderId" validate:"required,max=64,merchant_order_id"`
	Channel         string `json:"channel" validate:"omitempty,channel"`
}

func TestValidateOK(t *testing.T) {
	req := createRequest{Amount: 100, MerchantOrderID: "ord_2024-01.5", Channel: "android"}
	if errs := Validate(&req); errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestValidateMerchantOrderID(t *testing.T) {
	for _, bad := range []string{"has space", "slash/ord", "ord?x=1"} {
		req := createRequest{Amount: 100, MerchantOrderID: bad}
		errs := Validate(&req)
		if errs == nil || errs["merchantOrderId"] == "" {
			t.Fatalf("id %q: expected merchantOrderId error, got %v", bad, errs)
		}
	}
}

func TestValidateChannel(t *testing.T) {
	req := createRequest{Amount: 100, MerchantOrderID: "ord-1", Channel: "desktop"}
	errs := Validate(&req)
	if errs == nil || errs["channel"] != "Invalid channel" {
		t.Fatalf("expected channel error, got %v", errs)
	}
}

func TestValidateUsesJSONFieldNames(t *testing.T) {
	req := createRequest{Amount: 0, MerchantOrderID: "ord-1"}
	errs := Validate(&req)
	if _, ok := errs["amount"]; !ok {
		t.Fatalf("expected json tag name in errors, got %v", errs)
	}
}
