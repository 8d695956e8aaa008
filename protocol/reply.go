package protocol

import "fmt"

// Client-facing texts of the line transport.
const (
	LineInvalidRequest  = "Erro - Formato ou operação de requisição inválido."
	LineInvalidResponse = "Erro - Resposta inválida do servidor."
	LineWorkerError     = "Erro ao comunicar com o servidor."
	LineNoCapacity      = "Erro - Nenhum servidor disponível."
)

const (
	successPrefix = "Operação finalizada com sucesso: "
	failurePrefix = "Sucesso no pipeline. Falha na operação. Resultado do servidor: "
)

// LineReply translates an ACK into the line sent back to a TCP client.
func LineReply(ack Ack) string {
	if ack.Succeeded() {
		return successPrefix + ack.Body
	}
	return failurePrefix + ack.Body
}

// DatagramReply translates an ACK into the datagram sent back to a UDP client.
func DatagramReply(ack Ack) string {
	if ack.Succeeded() {
		return fmt.Sprintf("Operação completada com sucesso para a requisição ID: %s\nResultado do servidor: %s", ack.ID, ack.Body)
	}
	return fmt.Sprintf("Operação falhou para a requisição ID: %s\nResultado do servidor: %s", ack.ID, ack.Body)
}

// DatagramExhausted is sent to a UDP client whose request ran out of retries.
func DatagramExhausted(id CorrelationID, attempts int) string {
	return fmt.Sprintf("Operação falhou para a requisição ID: %s\nResultado do servidor: nenhuma resposta após %d tentativas", id, attempts)
}
