package client

// Product is a row of the target's products table as returned by
// GET /products.
type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Price       float64 `json:"price"`
}

// NewProduct is the payload of POST /products.
type NewProduct struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Created is the target's answer to a create.
type Created struct {
	// ID is zero when the response carried no usable id.
	ID int64 `json:"id"`
	// Message is whatever human readable text the target sent back.
	Message string `json:"message,omitempty"`
	// StatusCode is the 2xx status the target answered with.
	StatusCode int `json:"status_code"`
}

// Listing is a collection of products and the status it came with.
type Listing struct {
	Products   []Product `json:"products"`
	StatusCode int       `json:"status_code"`
}

// Deletion is the target's answer to DELETE /products/{id}.
type Deletion struct {
	// Confirmed is read from the structured "deleted" field when the target
	// sends one, otherwise a 2xx status is taken as confirmation.
	Confirmed  bool   `json:"confirmed"`
	Message    string `json:"message,omitempty"`
	StatusCode int    `json:"status_code"`
}

// Paths holds the target routes. Zero fields fall back to DefaultPaths.
type Paths struct {
	Products string `mapstructure:"products" json:"products"`
	Error    string `mapstructure:"error" json:"error"`
	Slow     string `mapstructure:"slow" json:"slow"`
	DBError  string `mapstructure:"db_error" json:"db_error"`
	Status   string `mapstructure:"status" json:"status"`
}

// DefaultPaths returns the routes exposed by the demo backend.
func DefaultPaths() Paths {
	return Paths{
		Products: "/products",
		Error:    "/error-test",
		Slow:     "/slow-test",
		DBError:  "/db-error-test",
		Status:   "/",
	}
}

func (p Paths) withDefaults() Paths {
	d := DefaultPaths()
	if p.Products == "" {
		p.Products = d.Products
	}
	if p.Error == "" {
		p.Error = d.Error
	}
	if p.Slow == "" {
		p.Slow = d.Slow
	}
	if p.DBError == "" {
		p.DBError = d.DBError
	}
	if p.Status == "" {
		p.Status = d.Status
	}
	return p
}
