package model

import "fmt"

// Address is a saved delivery address of an authenticated user.
type Address struct {
	ID           string `json:"id"`
	District     string `json:"district"`
	Khoroo       string `json:"khoroo"`
	Street       string `json:"street,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	Complex      string `json:"complex,omitempty"`
	Building     string `json:"building,omitempty"`
	Entrance     string `json:"entrance,omitempty"`
	Apartment    string `json:"apartment,omitempty"`
	Note         string `json:"note,omitempty"`
	Label        string `json:"label,omitempty"`
	IsDefault    bool   `json:"isDefault"`
}

// GuestAddress is an address attached by value to a guest order.
type GuestAddress struct {
	District     string `json:"district"`
	Khoroo       string `json:"khoroo"`
	Street       string `json:"street,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	Complex      string `json:"complex,omitempty"`
	Building     string `json:"building,omitempty"`
	Entrance     string `json:"entrance,omitempty"`
	Apartment    string `json:"apartment,omitempty"`
	Note         string `json:"note,omitempty"`
}

// AddressRequest is the payload for creating or updating a saved address.
type AddressRequest struct {
	District     string `json:"district"`
	Khoroo       string `json:"khoroo"`
	Street       string `json:"street,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	Complex      string `json:"complex,omitempty"`
	Building     string `json:"building,omitempty"`
	Entrance     string `json:"entrance,omitempty"`
	Apartment    string `json:"apartment,omitempty"`
	Note         string `json:"note,omitempty"`
	Label        string `json:"label,omitempty"`
	IsDefault    bool   `json:"isDefault"`
}

// AddressInput is the inline address block of the checkout form, shared by
// the guest and authenticated paths.
type AddressInput struct {
	District     string `json:"district" validate:"required"`
	Khoroo       string `json:"khoroo" validate:"required"`
	Street       string `json:"street,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	Complex      string `json:"complex,omitempty"`
	Building     string `json:"building,omitempty"`
	Entrance     string `json:"entrance,omitempty"`
	Apartment    string `json:"apartment,omitempty"`
	Note         string `json:"note,omitempty"`
	Label        string `json:"label,omitempty"`
}

// String renders a one-line address for logs and receipts.
func (a Address) String() string {
	s := fmt.Sprintf("%s, %s", a.District, a.Khoroo)
	if a.Building != "" {
		s += ", bldg " + a.Building
	}
	if a.Apartment != "" {
		s += ", apt " + a.Apartment
	}
	return s
}
