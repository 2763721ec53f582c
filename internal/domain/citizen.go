package domain

import "strings"

type Citizen struct {
	ID              ID     `json:"id,omitempty"`
	Cedula          string `json:"cedula"`
	Nombre          string `json:"nombre"`
	Apellido        string `json:"apellido"`
	Direccion       string `json:"direccion,omitempty"`
	Telefono        string `json:"telefono,omitempty"`
	Email           string `json:"email,omitempty"`
	FechaNacimiento string `json:"fechaNacimiento,omitempty"`
	Genero          string `json:"genero,omitempty"`
	Estado          string `json:"estado,omitempty"`
}

func (c Citizen) FullName() string {
	return strings.TrimSpace(c.Nombre + " " + c.Apellido)
}
