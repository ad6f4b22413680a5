package nuvende

// Cob is the provider charge (cobrança imediata) request body.
type Cob struct {
	Calendar     CobCalendar `json:"calendario"`
	Debtor       CobDebtor   `json:"devedor"`
	Value        CobValue    `json:"valor"`
	Key          string      `json:"chave"`
	PayerRequest string      `json:"solicitacaoPagador,omitempty"`
}

type CobCalendar struct {
	Expiration int `json:"expiracao"`
}

type CobDebtor struct {
	CPF  string `json:"cpf"`
	Name string `json:"nome"`
}

type CobValue struct {
	Original string `json:"original"`
}
