package domain

// StockItem is a warehouse product. Stock only goes negative when the
// permissive stock policy lets concurrent orders oversell.
type StockItem struct {
	ID    string
	Name  string
	Stock int
	Sales int
}
