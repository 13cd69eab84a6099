package types

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCategory is applied by EventBuilder when no category is given.
const DefaultCategory = "category"

// Event is a trackable occurrence in the host application, such as a
// registration or an in-app purchase. The tracking backend records each Event
// as a conversion.
type Event struct {
	// Internal identifier, generated on construction.
	ID string `json:"id"`
	// When the event occurred. Defaults to construction time.
	Date time.Time `json:"date"`
	// Category of the event (the product of the resulting conversion).
	Category string `json:"category,omitempty"`
	// Free-form metadata forwarded as "meta".
	Meta map[string]string `json:"meta,omitempty"`
	// Sales attached to the event, all in SalesCurrency.
	Sales []Sale `json:"sales,omitempty"`
	// ISO 4217 currency code of Sales.
	SalesCurrency string `json:"currency,omitempty"`
	// Advertiser reference for the conversion, e.g. an order id.
	ConversionReference string `json:"conversion_reference,omitempty"`
	// Advertiser reference for the customer. Should not contain personally
	// identifiable information; hash usernames before using them here.
	CustomerReference string `json:"customer_reference,omitempty"`
	Voucher           string `json:"voucher,omitempty"`
	// ISO 3166-1 alpha-3 country code where the event took place.
	Country      string `json:"country,omitempty"`
	CustomerType string `json:"customer_type,omitempty"`
}

func newEvent() *Event {
	return &Event{
		ID:   uuid.NewString(),
		Date: time.Now(),
		Meta: map[string]string{},
	}
}

// NewEvent returns an event with the given category.
func NewEvent(category string) *Event {
	e := newEvent()
	e.Category = category
	return e
}

// NewSaleEvent returns an event carrying one or more sales in currency.
func NewSaleEvent(currency string, sales ...Sale) *Event {
	e := newEvent()
	e.SetSales(currency, sales...)
	return e
}

// AddMeta sets a metadata item on the event.
func (e *Event) AddMeta(key, value string) {
	if e.Meta == nil {
		e.Meta = map[string]string{}
	}
	e.Meta[key] = value
}

// SetSales replaces the sales attached to the event.
func (e *Event) SetSales(currency string, sales ...Sale) {
	e.SalesCurrency = currency
	e.Sales = append([]Sale(nil), sales...)
}

// SalesData returns the sale-related fields in their wire representation.
// Empty fields are omitted.
func (e *Event) SalesData() map[string]any {
	out := map[string]any{}
	if len(e.Sales) > 0 {
		sales := make([]map[string]any, 0, len(e.Sales))
		for _, s := range e.Sales {
			sales = append(sales, s.wire())
		}
		out["sales"] = sales
	}
	if e.SalesCurrency != "" {
		out["currency"] = e.SalesCurrency
	}
	if e.ConversionReference != "" {
		out["conversion_ref"] = e.ConversionReference
	}
	if e.CustomerReference != "" {
		out["customer_ref"] = e.CustomerReference
	}
	if e.Voucher != "" {
		out["voucher"] = e.Voucher
	}
	if e.Country != "" {
		out["country"] = e.Country
	}
	if e.CustomerType != "" {
		out["customer_type"] = e.CustomerType
	}
	return out
}

// EventBuilder constructs Events field by field.
// The zero value is not usable; call NewEventBuilder.
type EventBuilder struct {
	category            string
	sales               []Sale
	currency            string
	conversionReference string
	customerReference   string
	voucher             string
	country             string
	customerType        string
}

func NewEventBuilder() *EventBuilder {
	return &EventBuilder{category: DefaultCategory}
}

func (b *EventBuilder) Category(category string) *EventBuilder {
	b.category = category
	return b
}

func (b *EventBuilder) Sales(currency string, sales ...Sale) *EventBuilder {
	b.sales = sales
	b.currency = currency
	return b
}

func (b *EventBuilder) ConversionReference(ref string) *EventBuilder {
	b.conversionReference = ref
	return b
}

func (b *EventBuilder) CustomerReference(ref string) *EventBuilder {
	b.customerReference = ref
	return b
}

func (b *EventBuilder) Voucher(voucher string) *EventBuilder {
	b.voucher = voucher
	return b
}

func (b *EventBuilder) Country(country string) *EventBuilder {
	b.country = country
	return b
}

func (b *EventBuilder) CustomerType(customerType string) *EventBuilder {
	b.customerType = customerType
	return b
}

// Build returns a new Event. A builder with sales produces a sale event
// without a category, matching NewSaleEvent.
func (b *EventBuilder) Build() *Event {
	var e *Event
	if b.sales != nil {
		e = NewSaleEvent(b.currency, b.sales...)
	} else {
		e = NewEvent(b.category)
	}
	e.ConversionReference = b.conversionReference
	e.CustomerReference = b.customerReference
	e.Voucher = b.voucher
	e.Country = b.country
	e.CustomerType = b.customerType
	return e
}
