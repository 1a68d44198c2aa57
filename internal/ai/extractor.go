// Package ai extracts invoice fields through an AI provider and normalizes
// the loosely-typed JSON it answers into the canonical invoice shape.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/facturasur/invoice-export-service/internal/models"
)

// Extractor handles AI-based data extraction from OCR text or images.
type Extractor struct {
	provider   Provider
	normalizer *Normalizer
}

// NewExtractor creates a new AI extractor.
func NewExtractor(provider Provider, normalizer *Normalizer) *Extractor {
	return &Extractor{provider: provider, normalizer: normalizer}
}

// Extract sends OCR text or an image to the provider and returns the
// normalized invoice plus the call duration in seconds.
func (e *Extractor) Extract(ctx context.Context, ocrText string, imageBase64 string) (*models.Invoice, float64, error) {
	startTime := time.Now()

	// Vision mode when we have an image and no usable text.
	isVisionMode := imageBase64 != "" && strings.TrimSpace(ocrText) == ""

	var prompt string
	if isVisionMode {
		prompt = buildPromptAFIP("")
	} else {
		prompt = buildPromptAFIP(ocrText)
	}

	response, err := e.provider.ExtractData(ctx, prompt, imageBase64)
	if err != nil {
		return nil, 0, fmt.Errorf("AI extraction failed: %w", err)
	}

	duration := time.Since(startTime).Seconds()

	invoice, err := e.normalizer.ParseResponse(response, ocrText)
	if err != nil {
		return nil, duration, fmt.Errorf("failed to parse AI response: %w", err)
	}
	return invoice, duration, nil
}

// buildPromptAFIP creates the extraction prompt for Argentine purchase
// invoices. With empty ocrText the model reads the attached image instead.
func buildPromptAFIP(ocrText string) string {
	currentYear := time.Now().Year()

	prompt := fmt.Sprintf(`Eres un EXPERTO en facturas fiscales de Argentina (AFIP). Extrae TODOS los datos fiscales del comprobante.

## EMISOR vs RECEPTOR
- EMISOR = quien VENDE. Su CUIT aparece ARRIBA, en el membrete, cerca de la razon social.
- RECEPTOR = quien COMPRA. Busca "Cliente:", "Sr/es:", "Apellido y Nombre / Razon Social" DESPUES del encabezado.
- PUEDE haber DOS CUIT distintos. NUNCA pongas el mismo CUIT en emisor y receptor.
- CUIT: 11 digitos, quita guiones al extraer ("30-71041022-0" -> "30710410220").

## COMPROBANTE
- Letra y tipo: FACTURA A/B/C, NOTA DE CREDITO A/B/C, NOTA DE DEBITO A/B/C.
- Codigos AFIP junto a la letra: 01=FA, 02=NDA, 03=NCA, 06=FB, 07=NDB, 08=NCB, 11=FC, 12=NDC, 13=NCC.
- Numero: "Punto de Venta: 0003 Comp. Nro: 00045871" o "0003-00045871".
- CAE: 14 digitos, al pie, junto a "CAE" y su fecha de vencimiento.

Devuelve SOLO JSON valido (sin markdown, sin comentarios):
{
  "cuitEmisor": "solo digitos - del VENDEDOR",
  "nombreEmisor": "razon social del vendedor",
  "cuitReceptor": "solo digitos - del COMPRADOR",
  "tipoComprobante": "FA, FB, FC, NCA, NCB, NCC, NDA, NDB o NDC",
  "puntoVenta": "4 digitos",
  "numero": "8 digitos",
  "fechaEmision": "YYYY-MM-DD",
  "netoGravado": numero (importe neto gravado, usa 0 si no aparece),
  "netoNoGravado": numero (usa 0 si no aparece),
  "exento": numero (operaciones exentas, usa 0 si no aparece),
  "totalIva": numero (importe total de IVA, usa 0 si no aparece),
  "otrosTributos": numero (percepciones y otros tributos, usa 0 si no aparece),
  "total": numero final (usa 0 si no aparece, NUNCA null),
  "impuestos": [{"codigo": "IVA_21", "descripcion": "IVA 21%%", "baseImponible": 1000, "importe": 210, "alicuota": 21}],
  "cae": "14 digitos o null",
  "caeVencimiento": "YYYY-MM-DD o null"
}

## REGLAS CRITICAS
1. NUNCA inventes datos - usa null si no puedes leer un campo de texto.
2. NUNCA devuelvas null para total - usa 0 si no puedes leerlo.
3. Todos los montos son numeros decimales, punto decimal, sin separador de miles.
4. En "impuestos" incluye IVA discriminado y percepciones (IIBB, IVA) por separado.
5. Ano por defecto si no se ve: %d.

AHORA ANALIZA EL COMPROBANTE. PRIMERO identifica quien VENDE y quien COMPRA, LUEGO extrae los datos.`, currentYear)

	if strings.TrimSpace(ocrText) != "" {
		prompt += "\n\nTexto del comprobante:\n" + ocrText
	}
	return prompt
}
